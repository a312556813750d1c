// Command metacheck exercises backend/mongo end to end
// (create/get/get_all/iterate/delete) against a live server for manual
// verification. The data-daemon engine never calls this backend; this
// is the only caller outside backend/mongo's own tests.
/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/juleastore/juleastore/backend"
	"github.com/juleastore/juleastore/backend/mongo"
	"github.com/juleastore/juleastore/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		path      string
		namespace string
		key       string
	)
	pflag.StringVar(&path, "path", "", "meta backend path, host[:port]/database (overrides config)")
	pflag.StringVar(&namespace, "namespace", "metacheck", "collection/namespace to exercise")
	pflag.StringVar(&key, "key", "metacheck-probe", "document key to create/get/delete")
	pflag.Parse()

	if path == "" {
		path = config.Default().MetaPath
	}

	m := &mongo.Backend{}
	if err := m.Init(path); err != nil {
		fmt.Fprintf(os.Stderr, "metacheck: init: %v\n", err)
		return 1
	}
	defer m.Fini()

	if err := checkRoundTrip(m, namespace, key); err != nil {
		fmt.Fprintf(os.Stderr, "metacheck: %v\n", err)
		return 1
	}

	fmt.Println("metacheck: create/get/get_all/iterate/delete all succeeded")
	return 0
}

func checkRoundTrip(m backend.Meta, namespace, key string) error {
	doc := backend.Document{"probe": true}
	if err := m.Create(namespace, key, doc); err != nil {
		return fmt.Errorf("create: %w", err)
	}

	got, err := m.Get(namespace, key)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	if _, ok := got["probe"]; !ok {
		return fmt.Errorf("get: missing %q field in round-tripped document", "probe")
	}

	cur, err := m.GetAll(namespace)
	if err != nil {
		return fmt.Errorf("get_all: %w", err)
	}
	found := false
	for {
		d, ok, err := m.Iterate(cur)
		if err != nil {
			return fmt.Errorf("iterate: %w", err)
		}
		if !ok {
			break
		}
		if d["key"] == key {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("iterate: key %q not found in namespace %q", key, namespace)
	}

	if err := m.Delete(namespace, key); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}
