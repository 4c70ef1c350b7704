package amounts

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RegexTokenStrategy", func() {
	var (
		text   string
		result TokenResult
		err    error
	)

	JustBeforeEach(func() {
		result, err = RegexTokenStrategy{}.ExtractTokens(context.Background(), text)
	})

	When("the bill has labelled rupee amounts", func() {
		BeforeEach(func() {
			text = billText
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns every amount in order", func() {
			Expect(result.NoAmounts()).To(BeFalse())
			Expect(result.Raw.Tokens).To(Equal([]string{"1200", "1000", "200"}))
		})

		It("detects INR", func() {
			Expect(result.Raw.CurrencyHint).To(Equal("INR"))
		})

		It("scores confidence by token count", func() {
			Expect(result.Raw.Confidence).To(BeNumerically("~", 0.8, 1e-9))
		})
	})

	When("the only numbers are a page reference", func() {
		BeforeEach(func() {
			text = "see page 2 of 5"
		})

		It("signals the guardrail", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.NoAmounts()).To(BeTrue())
			Expect(result.Guardrail.Status).To(Equal(StatusNoAmounts))
			Expect(result.Guardrail.Reason).To(Equal("document too noisy or no numeric values found"))
		})
	})

	When("every number is below one", func() {
		BeforeEach(func() {
			text = "Rounding 0.5"
		})

		It("signals the guardrail", func() {
			Expect(result.NoAmounts()).To(BeTrue())
		})
	})

	When("the text holds a date and a phone number", func() {
		BeforeEach(func() {
			text = "Invoice dated 12/03/2024. Phone: 98765 43210. Total 450"
		})

		It("keeps only the amount", func() {
			Expect(result.Raw.Tokens).To(Equal([]string{"450"}))
		})
	})

	DescribeTable("phone numbers followed by amounts on the next line",
		func(text string, tokens []string) {
			res, err := RegexTokenStrategy{}.ExtractTokens(context.Background(), text)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.NoAmounts()).To(BeFalse())
			Expect(res.Raw.Tokens).To(Equal(tokens))
		},
		Entry("spaced number", "Phone: 98765 43210\n250 Lab test", []string{"250"}),
		Entry("unspaced number", "Mob: 9876543210\n1500 Consultation\n700 Pharmacy\nTotal 2200", []string{"1500", "700", "2200"}),
		Entry("country code", "Tel +91-98765-43210\n300 Dressing", []string{"300"}),
		Entry("amount on the same line", "Contact 555-123-4567 Fee 80", []string{"80"}),
	)

	When("the text has percentages and decimals", func() {
		BeforeEach(func() {
			text = "Total: $45.50 incl 10% tip"
		})

		It("keeps them as written", func() {
			Expect(result.Raw.Tokens).To(Equal([]string{"45.50", "10%"}))
			Expect(result.Raw.CurrencyHint).To(Equal("USD"))
		})
	})

	When("the text has many amounts", func() {
		BeforeEach(func() {
			text = "11 22 33 44 55 66"
		})

		It("caps confidence at 0.9", func() {
			Expect(result.Raw.Confidence).To(Equal(0.9))
		})
	})

	DescribeTable("currency detection",
		func(text, currency string) {
			res, err := RegexTokenStrategy{}.ExtractTokens(context.Background(), text)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Raw.CurrencyHint).To(Equal(currency))
		},
		Entry("rupee symbol wins over dollar", "Paid ₹500 or $10", "INR"),
		Entry("INR code", "Amount INR 300", "INR"),
		Entry("Rs. prefix", "Total Rs. 300", "INR"),
		Entry("dollar", "Total $300", "USD"),
		Entry("euro", "Total €300", "EUR"),
		Entry("pound", "Total £300", "GBP"),
		Entry("no marker defaults to INR", "Total 300", "INR"),
		Entry("INR glued to the amount wins over dollar", "INR1200 paid, tip $15", "INR"),
		Entry("Rs glued to the amount wins over dollar", "Rs1200 paid, tip $15", "INR"),
		Entry("Rs inside a word is not a marker", "Labour 3 hrs, $45", "USD"),
	)
})

var _ = Describe("LLMTokenStrategy", func() {
	var (
		model  *mockModel
		result TokenResult
		err    error
	)

	BeforeEach(func() {
		model = &mockModel{}
	})

	JustBeforeEach(func() {
		result, err = NewLLMTokenStrategy(model).ExtractTokens(context.Background(), billText)
	})

	When("the model returns tokens", func() {
		BeforeEach(func() {
			model.tokensResp = "```json\n" + `{"raw_tokens": ["1200", "1O00", "200"], "currency_hint": "INR", "confidence": 0.74}` + "\n```"
		})

		It("returns them unchanged", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Raw).To(Equal(&RawTokens{
				Tokens:       []string{"1200", "1O00", "200"},
				CurrencyHint: "INR",
				Confidence:   0.74,
			}))
		})

		It("sends the document in the prompt", func() {
			Expect(model.prompts).To(HaveLen(1))
			Expect(model.prompts[0]).To(ContainSubstring(billText))
		})
	})

	When("the model reports no amounts", func() {
		BeforeEach(func() {
			model.tokensResp = `{"status": "no_amounts_found", "reason": "only a page number"}`
		})

		It("returns the guardrail", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Guardrail).To(Equal(NewGuardrail("only a page number")))
		})
	})

	When("the model returns an empty token list", func() {
		BeforeEach(func() {
			model.tokensResp = `{"raw_tokens": [], "currency_hint": "INR", "confidence": 0.1}`
		})

		It("treats it as the guardrail", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.NoAmounts()).To(BeTrue())
		})
	})

	When("the payload has the wrong shape", func() {
		BeforeEach(func() {
			model.tokensResp = `{"raw_tokens": "1200", "currency_hint": "INR", "confidence": 0.9}`
		})

		It("returns ErrSchemaMismatch", func() {
			Expect(err).To(MatchError(ErrSchemaMismatch))
		})
	})

	When("the confidence is out of range", func() {
		BeforeEach(func() {
			model.tokensResp = `{"raw_tokens": ["1200"], "currency_hint": "INR", "confidence": 7}`
		})

		It("returns ErrSchemaMismatch", func() {
			Expect(err).To(MatchError(ErrSchemaMismatch))
		})
	})

	When("the model fails", func() {
		BeforeEach(func() {
			model.tokensErr = errors.New("503 service unavailable")
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("503")))
		})
	})
})

var _ = Describe("TokenExtractor", func() {
	It("falls back when the first strategy fails", func() {
		failing := &mockTokenStrategy{err: errors.New("boom")}
		extractor := NewTokenExtractor(failing, RegexTokenStrategy{})

		result, err := extractor.Extract(context.Background(), billText)
		Expect(err).NotTo(HaveOccurred())
		Expect(failing.calls).To(Equal(1))
		Expect(result.Raw.Tokens).To(HaveLen(3))
	})

	It("stops at the first strategy that answers", func() {
		first := &mockTokenStrategy{result: TokenResult{Guardrail: NewGuardrail("nothing")}}
		second := &mockTokenStrategy{err: errors.New("not reached")}

		result, err := NewTokenExtractor(first, second).Extract(context.Background(), billText)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.NoAmounts()).To(BeTrue())
		Expect(second.calls).To(BeZero())
	})

	It("returns ErrStrategiesExhausted when every strategy fails", func() {
		cause := errors.New("boom")
		_, err := NewTokenExtractor(&mockTokenStrategy{err: cause}).Extract(context.Background(), billText)
		Expect(err).To(MatchError(ErrStrategiesExhausted))
		Expect(err).To(MatchError(cause))
	})
})

var _ = Describe("TokenResult", func() {
	It("serializes the success shape", func() {
		b, err := json.Marshal(TokenResult{Raw: &RawTokens{Tokens: []string{"10"}, CurrencyHint: "USD", Confidence: 0.6}})
		Expect(err).NotTo(HaveOccurred())
		Expect(b).To(MatchJSON(`{"raw_tokens": ["10"], "currency_hint": "USD", "confidence": 0.6}`))
	})

	It("serializes the guardrail shape", func() {
		b, err := json.Marshal(TokenResult{Guardrail: NewGuardrail("too noisy")})
		Expect(err).NotTo(HaveOccurred())
		Expect(b).To(MatchJSON(`{"status": "no_amounts_found", "reason": "too noisy"}`))
	})
})
