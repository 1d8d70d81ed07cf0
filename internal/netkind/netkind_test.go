/*
 * MIT License
 *
 * Copyright (c) 2026 The echobench Authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package netkind_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cedarforge/echobench/internal/netkind"
)

var _ = Describe("Network", func() {
	DescribeTable("ParseNetwork",
		func(input string, want netkind.Network) {
			got, err := netkind.ParseNetwork(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("lowercase tcp", "tcp", netkind.NetworkTCP),
		Entry("uppercase TCP", "TCP", netkind.NetworkTCP),
		Entry("tcp4", "tcp4", netkind.NetworkTCP4),
		Entry("tcp6", "tcp6", netkind.NetworkTCP6),
	)

	It("rejects an unknown network", func() {
		_, err := netkind.ParseNetwork("sctp")
		Expect(err).To(HaveOccurred())
	})

	It("round-trips through MarshalText/UnmarshalText", func() {
		var n netkind.Network
		Expect(n.UnmarshalText([]byte("tcp6"))).To(Succeed())
		Expect(n).To(Equal(netkind.NetworkTCP6))

		text, err := n.MarshalText()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(text)).To(Equal("tcp6"))
	})
})

var _ = Describe("Engine", func() {
	DescribeTable("ParseEngine",
		func(input string, want netkind.Engine) {
			got, err := netkind.ParseEngine(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("thread", "thread", netkind.EngineThreadPool),
		Entry("alias thread-pool", "thread-pool", netkind.EngineThreadPool),
		Entry("select", "select", netkind.EngineLevelMux),
		Entry("alias levelmux", "levelmux", netkind.EngineLevelMux),
		Entry("epoll", "epoll", netkind.EngineEdgeMux),
		Entry("alias edgemux", "edgemux", netkind.EngineEdgeMux),
	)

	It("rejects an unknown engine", func() {
		_, err := netkind.ParseEngine("iocp")
		Expect(err).To(HaveOccurred())
	})

	It("stringifies back to the canonical original-server name", func() {
		Expect(netkind.EngineThreadPool.String()).To(Equal("thread"))
		Expect(netkind.EngineLevelMux.String()).To(Equal("select"))
		Expect(netkind.EngineEdgeMux.String()).To(Equal("epoll"))
	})
})
