package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/oauth2"

	"viammo.app/tripscan/internal/model"
	"viammo.app/tripscan/internal/queue"
	"viammo.app/tripscan/internal/service"
	"viammo.app/tripscan/internal/taskstore"
)

var _ = Describe("ScanService", func() {
	var (
		ctx      context.Context
		store    *taskstore.MemoryStore
		creds    *taskstore.MemoryCredentials
		producer *mockProducer
		svc      service.ScanService
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = taskstore.NewMemoryStore()
		creds = taskstore.NewMemoryCredentials()
		producer = &mockProducer{}
		svc = service.NewScanService(store, creds, producer, time.Minute)
	})

	It("stores the state and the token, then enqueues the scan", func() {
		state, err := svc.Start(ctx, &oauth2.Token{AccessToken: "ya29.a"})

		Expect(err).NotTo(HaveOccurred())
		Expect(state.ID).NotTo(BeZero())
		Expect(state.Status).To(Equal(model.ScanStatusInProgress))

		stored, err := svc.Get(ctx, state.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Message).To(Equal("Scan queued"))

		tok, err := creds.TakeToken(ctx, state.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(tok.AccessToken).To(Equal("ya29.a"))

		Expect(producer.enqueued).To(ConsistOf(queue.ScanMessage{ScanID: state.ID}))
	})

	It("gives each scan its own id", func() {
		a, _ := svc.Start(ctx, &oauth2.Token{AccessToken: "t"})
		b, _ := svc.Start(ctx, &oauth2.Token{AccessToken: "t"})

		Expect(a.ID).NotTo(Equal(b.ID))
	})

	It("rejects a missing token", func() {
		_, err := svc.Start(ctx, &oauth2.Token{})

		Expect(errors.Is(err, service.ErrMissingToken)).To(BeTrue())
		Expect(producer.enqueued).To(BeEmpty())
	})

	It("reports enqueue failures", func() {
		producer.enqueueFn = func(context.Context, queue.ScanMessage) error {
			return errors.New("redis down")
		}

		_, err := svc.Start(ctx, &oauth2.Token{AccessToken: "t"})

		Expect(err).To(MatchError(ContainSubstring("enqueueing scan")))
	})

	It("maps unknown scans to ErrScanNotFound", func() {
		_, err := svc.Get(ctx, 12345)

		Expect(errors.Is(err, service.ErrScanNotFound)).To(BeTrue())
	})
})

var _ = Describe("AuthService", func() {
	var server *httptest.Server

	BeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"ya29.x","token_type":"Bearer","expires_in":3600}`))
		}))
		DeferCleanup(server.Close)
	})

	newService := func() service.AuthService {
		return service.NewAuthService(&oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "http://localhost/callback",
			Endpoint:     oauth2.Endpoint{AuthURL: server.URL + "/auth", TokenURL: server.URL + "/token"},
			Scopes:       []string{"gmail.readonly"},
		})
	}

	It("builds a consent URL carrying the state", func() {
		url := newService().AuthorizationURL("xyz")

		Expect(url).To(HavePrefix(server.URL + "/auth?"))
		Expect(url).To(ContainSubstring("state=xyz"))
		Expect(url).To(ContainSubstring("access_type=offline"))
	})

	It("exchanges a code for a token", func() {
		tok, err := newService().Exchange(context.Background(), "good-code")

		Expect(err).NotTo(HaveOccurred())
		Expect(tok.AccessToken).To(Equal("ya29.x"))
	})

	It("maps a rejected code to ErrInvalidCode", func() {
		_, err := newService().Exchange(context.Background(), "bad")

		Expect(errors.Is(err, service.ErrInvalidCode)).To(BeTrue())
	})
})
