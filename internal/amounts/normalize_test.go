package amounts

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NormalizeAmounts", func() {
	var (
		tokens []string
		result NormalizedAmounts
	)

	JustBeforeEach(func() {
		result = NormalizeAmounts(tokens)
	})

	When("a token has OCR digit confusions", func() {
		BeforeEach(func() {
			tokens = []string{"1O0", "l2S", "Bq"}
		})

		It("corrects them", func() {
			Expect(result.Values).To(Equal([]float64{100, 125, 89}))
		})

		It("is fully confident", func() {
			Expect(result.Confidence).To(BeNumerically("~", 0.9, 1e-9))
		})
	})

	When("tokens carry symbols, separators and percent signs", func() {
		BeforeEach(func() {
			tokens = []string{"₹1,200", "10%", "$45.50", " 7 "}
		})

		It("strips them", func() {
			Expect(result.Values).To(Equal([]float64{1200, 10, 45.5, 7}))
		})
	})

	When("some tokens cannot be read", func() {
		BeforeEach(func() {
			tokens = []string{"12abc", "1200", "-5"}
		})

		It("drops them", func() {
			Expect(result.Values).To(Equal([]float64{1200}))
		})

		It("averages confidence over every token", func() {
			Expect(result.Confidence).To(BeNumerically("~", (0.3+0.9+0.3)/3, 1e-9))
		})
	})

	When("no token can be read", func() {
		BeforeEach(func() {
			tokens = []string{"xyz"}
		})

		It("returns no values", func() {
			Expect(result.Values).To(BeEmpty())
			Expect(result.Values).NotTo(BeNil())
		})

		It("still scores the rejected tokens", func() {
			Expect(result.Confidence).To(BeNumerically("~", 0.3, 1e-9))
		})
	})

	When("there are no tokens", func() {
		BeforeEach(func() {
			tokens = nil
		})

		It("returns zero confidence", func() {
			Expect(result.Values).To(BeEmpty())
			Expect(result.Confidence).To(BeZero())
		})
	})

	When("a token is zero", func() {
		BeforeEach(func() {
			tokens = []string{"0.00"}
		})

		It("keeps it", func() {
			Expect(result.Values).To(Equal([]float64{0}))
		})
	})

	It("is idempotent on its own output", func() {
		first := NormalizeAmounts([]string{"1O0", "₹1,200.50", "10%"})

		again := make([]string, len(first.Values))
		for i, v := range first.Values {
			again[i] = formatValue(v)
		}
		Expect(NormalizeAmounts(again).Values).To(Equal(first.Values))
	})

	It("keeps confidence within bounds", func() {
		for _, toks := range [][]string{{"1"}, {"x"}, {"1", "x", "2"}, {}} {
			c := NormalizeAmounts(toks).Confidence
			Expect(c).To(BeNumerically(">=", 0))
			Expect(c).To(BeNumerically("<=", 1))
		}
	})
})
