//go:build system

package system_test

import (
	"fmt"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"invoice-workflow-orchestrator/internal/domain"
)

// Requires the full compose environment: postgres, minio, the stub analysis
// engine, and the api / event-handler / orchestrator services.
var _ = Describe("invoice processing workflow", Ordered, func() {
	var cfg systemTestConfig

	BeforeAll(func() {
		cfg = loadSystemTestConfig()
		Expect(waitForEndpoint(cfg.APIBaseURL+"/readyz", time.Minute)).To(Succeed())
		Expect(waitForEndpoint(cfg.OrchestratorBaseURL+"/healthz", time.Minute)).To(Succeed())
	})

	It("drives an uploaded invoice to a terminal phase", func() {
		marker := fmt.Sprintf("system-test-%d", time.Now().UnixNano())
		uploaded, err := uploadInvoice(cfg, "inv-001.pdf", minimalPDF(marker))
		Expect(err).NotTo(HaveOccurred())
		Expect(uploaded.DocumentID).NotTo(BeEmpty())
		Expect(uploaded.Document.Key).To(HaveSuffix("inv-001.pdf"))

		status, err := waitForTerminalPhase(cfg, uploaded.DocumentID)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.JobID).NotTo(BeEmpty())
		Expect(status.Phase).To(BeElementOf(domain.PhaseArchived, domain.PhaseUnderReview))

		result, err := fetchResult(cfg, uploaded.DocumentID)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Artifact).NotTo(BeNil(), "terminal instance must reference its result artifact")
		Expect(result.Artifact.Key).To(Equal(fmt.Sprintf("scanned-invoices/%s.json", uploaded.Document.Key)))

		By("redelivering the completion event for a terminal instance")
		code, err := postCompletion(cfg, status.JobID, domain.JobStatusSucceeded, uploaded.Document)
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(http.StatusAccepted), "duplicate completion must be acknowledged")

		after, err := fetchStatus(cfg, uploaded.DocumentID)
		Expect(err).NotTo(HaveOccurred())
		Expect(after.Phase).To(Equal(status.Phase), "no phase change on redelivery")
	})

	It("rejects a non-PDF upload", func() {
		_, err := uploadInvoice(cfg, "notes.txt", []byte("not a scanned invoice"))
		Expect(err).To(MatchError(ContainSubstring("400")))
	})

	It("drops completion events for unknown jobs without failing", func() {
		code, err := postCompletion(cfg, "no-such-job", domain.JobStatusSucceeded, domain.Document{
			Bucket: "scanned-invoices",
			Key:    "ghost/inv-404.pdf",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(http.StatusAccepted))
	})
})
