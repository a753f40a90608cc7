package pool_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carelink/upstream/internal/pool"
)

var _ = Describe("HTTPTransport", func() {
	var transport pool.Transport

	BeforeEach(func() {
		transport = pool.NewHTTPTransport()
	})

	AfterEach(func() {
		transport.Close()
	})

	It("should return the status code and body", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		res, err := transport.Get(context.Background(), server.URL)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.StatusCode).To(Equal(http.StatusAccepted))
		Expect(res.Body).To(Equal([]byte(`{"ok":true}`)))
	})

	It("should pass 5xx responses through as responses, not errors", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer server.Close()

		res, err := transport.Get(context.Background(), server.URL)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.StatusCode).To(Equal(http.StatusBadGateway))
	})

	It("should fail on an unreachable endpoint", func() {
		res, err := transport.Get(context.Background(), "http://127.0.0.1:1")
		Expect(err).To(HaveOccurred())
		Expect(res).To(BeNil())
	})

	It("should honor the context deadline", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := transport.Get(ctx, server.URL)
		Expect(err).To(HaveOccurred())
	})

	It("should reject an invalid URL", func() {
		_, err := transport.Get(context.Background(), "://not-a-url")
		Expect(err).To(HaveOccurred())
	})
})
