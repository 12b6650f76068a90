// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package migration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/shopauth/internal/platform/migration"
)

func TestToPgx5DSN(t *testing.T) {
	tests := map[string]string{
		"postgres://shop:shop@db:5432/shop": "pgx5://shop:shop@db:5432/shop",
		"postgresql://shop@db/shop":         "pgx5://shop@db/shop",
		"pgx5://shop@db/shop":               "pgx5://shop@db/shop",
		"host=db user=shop dbname=shop":     "host=db user=shop dbname=shop",
		"mysql://shop@db/shop?postgres://x": "mysql://shop@db/shop?postgres://x",
	}

	for input, want := range tests {
		assert.Equal(t, want, migration.ToPgx5DSN(input), input)
	}
}
