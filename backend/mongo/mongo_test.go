/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package mongo

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/bson"
)

func TestMongo(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "mongo")
}

var _ = Describe("splitPath", func() {
	It("defaults the database name when the path names only a host", func() {
		uri, db := splitPath("localhost:27017")
		Expect(uri).To(Equal("mongodb://localhost:27017"))
		Expect(db).To(Equal("juleastore"))
	})

	It("splits an explicit database name after the slash", func() {
		uri, db := splitPath("localhost:27017/juleastore")
		Expect(uri).To(Equal("mongodb://localhost:27017"))
		Expect(db).To(Equal("juleastore"))
	})
})

var _ = Describe("toDocument", func() {
	It("drops the Mongo-assigned _id field", func() {
		raw := bson.M{"_id": "x", "key": "a", "size": int64(4)}
		doc := toDocument(raw)
		Expect(doc).NotTo(HaveKey("_id"))
		Expect(doc["key"]).To(Equal("a"))
		Expect(doc["size"]).To(Equal(int64(4)))
	})
})
