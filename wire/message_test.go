/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package wire_test

import (
	"bytes"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/juleastore/juleastore/wire"
)

func TestWire(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "wire")
}

var _ = Describe("Message", func() {
	It("round-trips header, payload and sub-sends", func() {
		m := wire.New(wire.TypeWrite, wire.SafetyNetwork)
		m.AddOperation(8)
		m.AppendString("storeA")
		m.AppendString("collB")
		m.AppendU64(12345)
		m.AddSend([]byte("payload-bytes"))

		var buf bytes.Buffer
		Expect(m.Write(&buf)).To(Succeed())

		got, ok, err := wire.Read(&buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got.Type).To(Equal(wire.TypeWrite))
		Expect(got.Modifier & wire.SafetyNetwork).To(Equal(wire.SafetyNetwork))
		Expect(got.Count).To(Equal(uint32(1)))

		store, err := got.ReadString()
		Expect(err).NotTo(HaveOccurred())
		Expect(store).To(Equal("storeA"))

		coll, err := got.ReadString()
		Expect(err).NotTo(HaveOccurred())
		Expect(coll).To(Equal("collB"))

		n, err := got.ReadU64()
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeEquivalentTo(12345))

		// Read does not consume sub-sends; the payload buffer is exhausted.
		Expect(buf.Len()).To(Equal(len("payload-bytes")))
		sub := make([]byte, len("payload-bytes"))
		_, err = buf.Read(sub)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(sub)).To(Equal("payload-bytes"))
	})

	It("reports a clean close as (nil, false, nil) before any header byte", func() {
		m, ok, err := wire.Read(&bytes.Buffer{})
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(m).To(BeNil())
	})

	It("reports ErrClosed on a short header", func() {
		_, _, err := wire.Read(bytes.NewReader([]byte{1, 2, 3}))
		Expect(err).To(Equal(wire.ErrClosed))
	})

	It("reports ErrClosed on a short payload", func() {
		m := wire.New(wire.TypeStatus, 0)
		m.AddOperation(4)
		m.AppendU32(7)
		var buf bytes.Buffer
		Expect(m.Write(&buf)).To(Succeed())
		truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])
		_, _, err := wire.Read(truncated)
		Expect(err).To(Equal(wire.ErrClosed))
	})

	It("reports ErrMalformed on a missing NUL terminator", func() {
		var buf bytes.Buffer
		var hdr [12]byte
		body := []byte("no-terminator")
		// hand-build a header so the payload has no trailing NUL.
		buf.Write(hdr[:])
		buf.Write(body)
		b := buf.Bytes()
		b[0] = byte(len(body))

		got, ok, err := wire.Read(bytes.NewReader(b))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		_, err = got.ReadString()
		Expect(err).To(Equal(wire.ErrMalformed))
	})
})
