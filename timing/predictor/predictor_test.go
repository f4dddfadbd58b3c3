package predictor_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/difftest/timing/predictor"
)

var _ = Describe("Predictor", func() {
	const (
		pc     = uint64(0x80001000)
		target = uint64(0x80000f00)
	)

	var p *predictor.Predictor

	BeforeEach(func() {
		p = predictor.New(predictor.Config{BHTSize: 16, BTBSize: 8})
	})

	It("should initially predict taken without a target", func() {
		pred := p.Predict(pc)
		Expect(pred.Taken).To(BeTrue())
		Expect(pred.TargetKnown).To(BeFalse())
		Expect(pred.Next(pc)).To(Equal(pc + 4))
	})

	It("should learn taken branches and their targets", func() {
		p.Update(pc, true, target)

		pred := p.Predict(pc)
		Expect(pred.TargetKnown).To(BeTrue())
		Expect(pred.Next(pc)).To(Equal(target))
	})

	It("should learn not-taken branches", func() {
		p.Update(pc, false, 0)
		p.Update(pc, false, 0)

		Expect(p.Predict(pc).Taken).To(BeFalse())
	})

	It("should require two mispredictions to change direction", func() {
		for range 3 {
			p.Update(pc, true, target)
		}

		p.Update(pc, false, 0)
		Expect(p.Predict(pc).Taken).To(BeTrue())

		p.Update(pc, false, 0)
		Expect(p.Predict(pc).Taken).To(BeFalse())
	})

	It("should not match a BTB entry of an aliasing branch", func() {
		p.Update(pc, true, target)

		// Eight entries of four bytes alias every 32 bytes.
		Expect(p.Predict(pc + 32).TargetKnown).To(BeFalse())
	})

	It("should count outcomes", func() {
		p.Predict(pc)
		p.Update(pc, true, target)
		p.Predict(pc)
		p.Update(pc, false, 0)

		stats := p.Stats()
		Expect(stats.Predictions).To(Equal(uint64(2)))
		Expect(stats.Correct).To(Equal(uint64(1)))
		Expect(stats.Mispredictions).To(Equal(uint64(1)))
		Expect(stats.BTBHits).To(Equal(uint64(1)))
		Expect(stats.Accuracy()).To(BeNumerically("~", 50.0))
	})

	It("should reset state and statistics", func() {
		p.Update(pc, false, 0)
		p.Update(pc, false, 0)
		p.Predict(pc)

		p.Reset()

		Expect(p.Stats()).To(Equal(predictor.Stats{}))
		Expect(p.Predict(pc).Taken).To(BeTrue())
	})

	It("should round sizes down to a power of two", func() {
		p = predictor.New(predictor.Config{BHTSize: 12, BTBSize: 0})
		p.Update(pc, true, target)
		Expect(p.Predict(pc).Next(pc)).To(Equal(target))
	})
})
