package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/bill-amounts/internal/retry"
)

var _ = Describe("Ollama", func() {
	var (
		server *ghttp.Server
		model  *Ollama
		text   string
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		model, err = NewOllama(server.URL()+"/", "llama3.1")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = model.Generate(context.Background(), "extract the amounts")
	})

	When("the API responds", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				ghttp.VerifyJSON(`{
					"model": "llama3.1",
					"stream": false,
					"format": "json",
					"messages": [
						{"role": "system", "content": "`+systemPrompt+`"},
						{"role": "user", "content": "extract the amounts"}
					]
				}`),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"message": map[string]string{"role": "assistant", "content": `{"amounts": []}`},
					"done":    true,
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the message content", func() {
			Expect(text).To(Equal(`{"amounts": []}`))
		})
	})

	When("the API is unavailable", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusServiceUnavailable, "model loading"))
		})

		It("returns an error carrying the status", func() {
			Expect(err).To(MatchError(ContainSubstring("status 503")))
		})

		It("is classified as transient", func() {
			Expect(retry.IsTransient(err)).To(BeTrue())
		})

		It("returns a StatusError", func() {
			var statusErr *retry.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(statusErr.Body).To(Equal("model loading"))
		})
	})
})

var _ = Describe("OpenAI", func() {
	var (
		server *ghttp.Server
		model  *OpenAI
		text   string
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		model, err = NewOpenAI(OpenAIConfig{
			APIKey:  "test-key",
			BaseURL: server.URL(),
			Model:   "test-model",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = model.Generate(context.Background(), "classify")
	})

	When("the API responds with a choice", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer test-key"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"choices": []map[string]any{
						{"message": map[string]string{"content": `{"confidence": 0.9}`}},
					},
				}),
			))
		})

		It("returns the first choice content", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`{"confidence": 0.9}`))
		})
	})

	When("the API returns no choices", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"choices": []any{}}))
		})

		It("returns an error", func() {
			Expect(err).To(MatchError(ContainSubstring("no choices")))
		})
	})

	When("the API rejects the request", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, "bad key"))
		})

		When("the body mentions 503", func() {
			BeforeEach(func() {
				server.SetHandler(0, ghttp.RespondWith(http.StatusBadRequest, "request req_15030 rejected"))
			})

			It("is still not transient", func() {
				Expect(err).To(MatchError(ContainSubstring("status 400")))
				Expect(retry.IsTransient(err)).To(BeFalse())
			})
		})

		It("returns a non-transient error", func() {
			Expect(err).To(MatchError(ContainSubstring("status 401")))
			Expect(retry.IsTransient(err)).To(BeFalse())
		})
	})
})

var _ = Describe("NewOpenAI", func() {
	It("requires an api key", func() {
		GinkgoT().Setenv("OPENAI_API_KEY", "")
		_, err := NewOpenAI(OpenAIConfig{})
		Expect(err).To(HaveOccurred())
	})

	It("falls back to the environment key", func() {
		GinkgoT().Setenv("OPENAI_API_KEY", "env-key")
		model, err := NewOpenAI(OpenAIConfig{})
		Expect(err).NotTo(HaveOccurred())
		Expect(model.cfg.APIKey).To(Equal("env-key"))
		Expect(model.cfg.BaseURL).To(Equal("https://api.openai.com/v1"))
	})
})

// stubModel returns queued responses in order
type stubModel struct {
	responses []string
	errs      []error
	calls     int
	closed    bool
}

func (s *stubModel) Generate(ctx context.Context, prompt string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("no response queued")
}

func (s *stubModel) Close() error {
	s.closed = true
	return nil
}

var _ = Describe("Retrying", func() {
	var (
		inner    *stubModel
		executor *retry.Executor
		model    *Retrying
	)

	BeforeEach(func() {
		inner = &stubModel{}
		executor = retry.NewExecutor(retry.Linear{Wait: time.Millisecond})
		executor.Sleep = func(context.Context, time.Duration) error { return nil }
		model = NewRetrying(inner, executor, 3)
	})

	It("retries transient failures until the model answers", func() {
		inner.errs = []error{errors.New("503"), errors.New("timeout")}
		inner.responses = []string{"", "", `{"ok": true}`}

		text, err := model.Generate(context.Background(), "p")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal(`{"ok": true}`))
		Expect(inner.calls).To(Equal(3))
	})

	It("gives up after the configured attempts", func() {
		last := errors.New("503 again")
		inner.errs = []error{errors.New("503"), errors.New("503"), last}

		_, err := model.Generate(context.Background(), "p")
		Expect(err).To(MatchError(last))
		Expect(inner.calls).To(Equal(3))
	})

	It("closes the wrapped model", func() {
		Expect(model.Close()).To(Succeed())
		Expect(inner.closed).To(BeTrue())
	})
})
