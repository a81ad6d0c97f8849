package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quillon/receipt-radar/internal/analysis"
)

func multipartBody(field string, files map[string][]byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, data := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
		header.Set("Content-Type", "image/png")
		part, err := writer.CreatePart(header)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		db       *mockDB
		storage  *mockStorage
		analyzer *mockAnalyzer
		auth     BasicAuth
		exporter Exporter
		server   *Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		analyzer = &mockAnalyzer{outcomeFn: successOutcome(&analysis.Receipt{
			Vendor: "Corner Store",
			Date:   "2024-03-20",
			Total:  25.99,
		})}
		auth = BasicAuth{}
		exporter = func(batch *Batch, receipts []*Receipt) ([]byte, error) {
			return []byte("workbook-bytes"), nil
		}
	})

	JustBeforeEach(func() {
		idGen := &mockIDGenerator{ids: []string{"batch-1", "rcpt-1", "rcpt-2"}}
		timeSrc := &mockTimeSource{now: time.Date(2024, 3, 21, 12, 0, 0, 0, time.UTC)}
		service := NewServiceWithDeps(db, analyzer, storage, idGen, timeSrc)
		server = NewServerWithMux(service, exporter, auth, http.NewServeMux())
	})

	do := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		return rec
	}

	Describe("POST /api/batches", func() {
		It("uploads files and returns the batch report", func() {
			body, contentType := multipartBody("files", map[string][]byte{
				"scan.png": []byte("fake-png"),
			})
			req := httptest.NewRequest("POST", "/api/batches", body)
			req.Header.Set("Content-Type", contentType)

			rec := do(req)

			Expect(rec.Code).To(Equal(http.StatusCreated))

			var batch Batch
			Expect(json.Unmarshal(rec.Body.Bytes(), &batch)).To(Succeed())
			Expect(batch.ID).To(Equal("batch-1"))
			Expect(batch.Results).To(HaveLen(1))
			Expect(batch.Results[0].Status).To(Equal(StatusAnalyzed))
		})

		It("accepts single-file clients using the file field", func() {
			body, contentType := multipartBody("file", map[string][]byte{
				"scan.png": []byte("fake-png"),
			})
			req := httptest.NewRequest("POST", "/api/batches", body)
			req.Header.Set("Content-Type", contentType)

			rec := do(req)

			Expect(rec.Code).To(Equal(http.StatusCreated))
		})

		It("rejects an empty form", func() {
			body, contentType := multipartBody("files", nil)
			req := httptest.NewRequest("POST", "/api/batches", body)
			req.Header.Set("Content-Type", contentType)

			rec := do(req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("No files were selected"))
		})

		It("rejects a request that is not multipart", func() {
			req := httptest.NewRequest("POST", "/api/batches", bytes.NewBufferString("nope"))

			rec := do(req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/batches/{id}", func() {
		BeforeEach(func() {
			db.batches["batch-1"] = &Batch{ID: "batch-1", Succeeded: 1}
		})

		It("returns the batch report", func() {
			rec := do(httptest.NewRequest("GET", "/api/batches/batch-1", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))

			var batch Batch
			Expect(json.Unmarshal(rec.Body.Bytes(), &batch)).To(Succeed())
			Expect(batch.Succeeded).To(Equal(1))
		})

		It("404s for an unknown batch", func() {
			rec := do(httptest.NewRequest("GET", "/api/batches/nope", nil))

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/batches", func() {
		It("returns an empty array when nothing was uploaded yet", func() {
			rec := do(httptest.NewRequest("GET", "/api/batches", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON("[]"))
		})
	})

	Describe("GET /api/batches/{id}/export", func() {
		BeforeEach(func() {
			db.batches["batch-1"] = &Batch{ID: "batch-1"}
		})

		It("streams the workbook with download headers", func() {
			rec := do(httptest.NewRequest("GET", "/api/batches/batch-1/export", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
			Expect(rec.Header().Get("Content-Disposition")).To(Equal("attachment; filename=receipts_batch-1.xlsx"))
			Expect(rec.Body.Bytes()).To(Equal([]byte("workbook-bytes")))
		})

		When("the exporter fails", func() {
			BeforeEach(func() {
				exporter = func(*Batch, []*Receipt) ([]byte, error) {
					return nil, fmt.Errorf("corrupt sheet")
				}
			})

			It("500s", func() {
				rec := do(httptest.NewRequest("GET", "/api/batches/batch-1/export", nil))

				Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("GET /api/receipts", func() {
		It("returns receipts as JSON", func() {
			db.receipts["rcpt-1"] = &Receipt{ID: "rcpt-1", Vendor: "Corner Store"}

			rec := do(httptest.NewRequest("GET", "/api/receipts", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))

			var receipts []*Receipt
			Expect(json.Unmarshal(rec.Body.Bytes(), &receipts)).To(Succeed())
			Expect(receipts).To(HaveLen(1))
			Expect(receipts[0].Vendor).To(Equal("Corner Store"))
		})

		It("returns an empty array rather than null", func() {
			rec := do(httptest.NewRequest("GET", "/api/receipts", nil))

			Expect(rec.Body.String()).To(MatchJSON("[]"))
		})
	})

	Describe("GET /api/receipts/{id}/file", func() {
		It("serves the original upload", func() {
			db.receipts["rcpt-1"] = &Receipt{ID: "rcpt-1", Filename: "rcpt-1_scan.png", ContentType: "image/png"}
			storage.files["rcpt-1_scan.png"] = []byte("image bytes")

			rec := do(httptest.NewRequest("GET", "/api/receipts/rcpt-1/file", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("image/png"))
			Expect(rec.Body.Bytes()).To(Equal([]byte("image bytes")))
		})
	})

	Describe("DELETE /api/receipts/{id}", func() {
		It("deletes and returns 204", func() {
			db.receipts["rcpt-1"] = &Receipt{ID: "rcpt-1", Filename: "rcpt-1_scan.png"}
			storage.files["rcpt-1_scan.png"] = []byte("image bytes")

			rec := do(httptest.NewRequest("DELETE", "/api/receipts/rcpt-1", nil))

			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(db.receipts).To(BeEmpty())
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("rejects unauthenticated requests", func() {
			rec := do(httptest.NewRequest("GET", "/api/receipts", nil))

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(rec.Header().Get("WWW-Authenticate")).To(ContainSubstring("Receipt Radar"))
		})

		It("rejects wrong credentials", func() {
			req := httptest.NewRequest("GET", "/api/receipts", nil)
			req.SetBasicAuth("admin", "wrong")

			Expect(do(req).Code).To(Equal(http.StatusUnauthorized))
		})

		It("accepts valid credentials", func() {
			req := httptest.NewRequest("GET", "/api/receipts", nil)
			req.SetBasicAuth("admin", "secret")

			Expect(do(req).Code).To(Equal(http.StatusOK))
		})
	})

	Describe("GET /", func() {
		It("serves the HTML interface", func() {
			rec := do(httptest.NewRequest("GET", "/", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(ContainSubstring("text/html"))
		})
	})
})
