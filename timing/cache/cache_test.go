package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/difftest/emu"
	"github.com/sarchlab/difftest/state"
	"github.com/sarchlab/difftest/timing/cache"
)

var _ = Describe("Cache", func() {
	var (
		c       *cache.Cache
		memory  *emu.Memory
		backing *cache.MemoryBacking
	)

	BeforeEach(func() {
		memory = emu.NewMemory(0, 64*1024)
		backing = cache.NewMemoryBacking(memory)
		// Small cache for testing: 4KB, 4-way, 64B lines
		config := cache.Config{
			Size:          4 * 1024,
			Associativity: 4,
			BlockSize:     64,
			HitLatency:    1,
			MissLatency:   10,
		}
		Expect(config.Validate()).To(Succeed())
		c = cache.New(config, backing)
	})

	Describe("Read operations", func() {
		It("should miss on cold cache", func() {
			Expect(memory.Store(0x1000, 8, 0xDEADBEEF)).To(Succeed())

			result := c.Read(0x1000, 8)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Latency).To(Equal(uint64(10)))
			Expect(result.Data).To(Equal(uint64(0xDEADBEEF)))

			stats := c.Stats()
			Expect(stats.Reads).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(0)))
		})

		It("should report the refilled line on a miss", func() {
			Expect(memory.Store(0x1008, 8, 0x1111)).To(Succeed())
			Expect(memory.Store(0x1038, 8, 0x2222)).To(Succeed())

			result := c.Read(0x1010, 4)

			Expect(result.Refill.Valid).To(BeTrue())
			Expect(result.Refill.Addr).To(Equal(uint64(0x1000)))
			Expect(result.Refill.Data[1]).To(Equal(uint64(0x1111)))
			Expect(result.Refill.Data[7]).To(Equal(uint64(0x2222)))
			Expect(c.Read(0x1010, 4).Refill.Valid).To(BeFalse())
		})

		It("should hit on cached data", func() {
			Expect(memory.Store(0x1000, 8, 0xCAFEBABE)).To(Succeed())

			c.Read(0x1000, 8)

			result := c.Read(0x1000, 8)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Latency).To(Equal(uint64(1)))
			Expect(result.Data).To(Equal(uint64(0xCAFEBABE)))
			Expect(c.Contains(0x1020)).To(BeTrue())

			stats := c.Stats()
			Expect(stats.Reads).To(Equal(uint64(2)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(1)))
		})

		It("should hit on different addresses in same cache line", func() {
			Expect(memory.Store(0x1000, 4, 0x11111111)).To(Succeed())
			Expect(memory.Store(0x1004, 4, 0x22222222)).To(Succeed())

			c.Read(0x1000, 4)

			result := c.Read(0x1004, 4)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Data).To(Equal(uint64(0x22222222)))
		})
	})

	Describe("Write operations", func() {
		It("should write-allocate on miss", func() {
			Expect(memory.Store(0x1000, 8, 0x99)).To(Succeed())

			result := c.Write(0x1000, 8, 0x12345678)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Latency).To(Equal(uint64(10)))
			Expect(result.Refill.Data[0]).To(Equal(uint64(0x99)))

			readResult := c.Read(0x1000, 8)
			Expect(readResult.Hit).To(BeTrue())
			Expect(readResult.Data).To(Equal(uint64(0x12345678)))
		})

		It("should hit on cached data", func() {
			c.Write(0x1000, 8, 0x11111111)

			result := c.Write(0x1000, 8, 0x22222222)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Latency).To(Equal(uint64(1)))

			readResult := c.Read(0x1000, 8)
			Expect(readResult.Data).To(Equal(uint64(0x22222222)))
		})
	})

	Describe("Eviction", func() {
		// 4KB / (4 ways * 64B) = 16 sets; set 0 holds 0x0, 0x400, 0x800, ...
		fillSet := func() {
			c.Write(0x0000, 8, 0x11111111)
			c.Write(0x0400, 8, 0x22222222)
			c.Write(0x0800, 8, 0x33333333)
			c.Write(0x0C00, 8, 0x44444444)
		}

		It("should evict when cache is full", func() {
			fillSet()

			Expect(c.Read(0x0000, 8).Hit).To(BeTrue())
			Expect(c.Read(0x0400, 8).Hit).To(BeTrue())
			Expect(c.Read(0x0800, 8).Hit).To(BeTrue())
			Expect(c.Read(0x0C00, 8).Hit).To(BeTrue())

			result := c.Write(0x1000, 8, 0x55555555)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Evicted).To(BeTrue())
			Expect(c.Stats().Evictions).To(Equal(uint64(1)))
		})

		It("should writeback dirty evicted blocks", func() {
			fillSet()

			c.Read(0x0400, 8)
			c.Read(0x0800, 8)
			c.Read(0x0C00, 8)

			result := c.Write(0x1000, 8, 0x55555555)

			Expect(result.EvictedAddr).To(Equal(uint64(0)))
			Expect(memory.Read64(0x0000)).To(Equal(uint64(0x11111111)))
			Expect(c.Stats().Writebacks).To(Equal(uint64(1)))
		})
	})

	Describe("Flush and invalidate", func() {
		It("should write back all dirty blocks", func() {
			c.Write(0x0000, 8, 0x11111111)
			c.Write(0x1000, 8, 0x22222222)

			Expect(memory.Read64(0x0000)).To(Equal(uint64(0)))
			Expect(memory.Read64(0x1000)).To(Equal(uint64(0)))

			c.Flush()

			Expect(memory.Read64(0x0000)).To(Equal(uint64(0x11111111)))
			Expect(memory.Read64(0x1000)).To(Equal(uint64(0x22222222)))
			Expect(c.Stats().Writebacks).To(Equal(uint64(2)))
		})

		It("should refill an invalidated line", func() {
			c.Read(0x2000, 8)
			c.Invalidate(0x2000)

			Expect(c.Contains(0x2000)).To(BeFalse())
			Expect(c.Read(0x2000, 8).Refill.Valid).To(BeTrue())
		})
	})

	Describe("Configurations", func() {
		It("should use refill-sized lines by default", func() {
			Expect(cache.DefaultL1IConfig().Validate()).To(Succeed())
			Expect(cache.DefaultL1DConfig().Validate()).To(Succeed())
			Expect(cache.DefaultL1DConfig().BlockSize).To(Equal(state.RefillLineSize))
		})

		It("should reject other line sizes", func() {
			config := cache.DefaultL1DConfig()
			config.BlockSize = 128
			Expect(config.Validate()).To(MatchError(ContainSubstring("block size")))
		})
	})
})
