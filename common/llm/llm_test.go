package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"viammo.app/tripscan/common/llm"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "test-model",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
		"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 1, "total_tokens": 13},
	}
}

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		lastBody map[string]any
		status   int
		content  string
	)

	BeforeEach(func() {
		status = http.StatusOK
		content = "True"
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			lastBody = map[string]any{}
			_ = json.Unmarshal(raw, &lastBody)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			if status != http.StatusOK {
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
				return
			}
			_ = json.NewEncoder(w).Encode(chatResponse(content))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("requires an API key", func() {
		_, err := llm.New(llm.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("sends sampling parameters and returns the completion text", func() {
		c, err := llm.New(llm.Config{APIKey: "k", BaseURL: server.URL, Model: "test-model"})
		Expect(err).NotTo(HaveOccurred())

		resp, err := c.Complete(context.Background(), llm.CompletionRequest{
			Prompt:      "Is this a hotel reservation?",
			MaxTokens:   8,
			Temperature: llm.Float(0.6),
			TopP:        llm.Float(1.0),
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).To(Equal("True"))
		Expect(resp.PromptTokens).To(Equal(12))
		Expect(lastBody["model"]).To(Equal("test-model"))
		Expect(lastBody["max_completion_tokens"]).To(BeNumerically("==", 8))
		Expect(lastBody["temperature"]).To(BeNumerically("==", 0.6))
		Expect(lastBody["top_p"]).To(BeNumerically("==", 1.0))
	})

	It("omits temperature when unset", func() {
		c, err := llm.New(llm.Config{APIKey: "k", BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = c.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
		Expect(err).NotTo(HaveOccurred())
		Expect(lastBody).NotTo(HaveKey("temperature"))
	})

	It("reports empty completions from CompleteText", func() {
		content = "   "
		c, err := llm.New(llm.Config{APIKey: "k", BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = llm.CompleteText(context.Background(), c, llm.CompletionRequest{Prompt: "hi"})
		Expect(errors.Is(err, llm.ErrEmptyCompletion)).To(BeTrue())
	})

	It("surfaces API errors", func() {
		status = http.StatusBadRequest
		c, err := llm.New(llm.Config{APIKey: "k", BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = c.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
		Expect(err).To(HaveOccurred())
		Expect(llm.IsRetryable(context.Background(), err)).To(BeFalse())
	})
})

type flakyCompleter struct {
	calls    atomic.Int32
	failures int32
	err      error
}

func (f *flakyCompleter) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.Completion, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, f.err
	}
	return &llm.Completion{Text: "ok"}, nil
}

func (f *flakyCompleter) Model() string { return "flaky" }

var _ = Describe("WithRetry", func() {
	It("retries network errors up to the bound", func() {
		f := &flakyCompleter{failures: 2, err: errors.New("connection reset")}
		c := llm.WithRetry(f, 2, time.Millisecond)

		resp, err := c.Complete(context.Background(), llm.CompletionRequest{Prompt: "x"})

		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).To(Equal("ok"))
		Expect(f.calls.Load()).To(Equal(int32(3)))
	})

	It("gives up after the bound", func() {
		f := &flakyCompleter{failures: 5, err: errors.New("connection reset")}
		c := llm.WithRetry(f, 1, time.Millisecond)

		_, err := c.Complete(context.Background(), llm.CompletionRequest{Prompt: "x"})

		Expect(err).To(MatchError("connection reset"))
		Expect(f.calls.Load()).To(Equal(int32(2)))
	})

	It("does not retry cancellation", func() {
		f := &flakyCompleter{failures: 5, err: context.Canceled}
		c := llm.WithRetry(f, 3, time.Millisecond)

		_, err := c.Complete(context.Background(), llm.CompletionRequest{Prompt: "x"})

		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		Expect(f.calls.Load()).To(Equal(int32(1)))
	})

	It("returns the wrapped client when retries are disabled", func() {
		f := &flakyCompleter{}
		Expect(llm.WithRetry(f, 0, time.Second)).To(BeIdenticalTo(llm.Completer(f)))
	})
})
