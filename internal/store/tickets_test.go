// SPDX-License-Identifier: MIT

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestListQueryAlwaysTenantScopedAndExcludesDeleted(t *testing.T) {
	q := listQuery(ListFilter{TenantID: "t1"})

	assert.Equal(t, bson.E{Key: "tenant_id", Value: "t1"}, q[0])
	assert.Equal(t, "deleted_at", q[1].Key)
	assert.Equal(t, bson.D{{Key: "$exists", Value: false}}, q[1].Value)
	assert.Len(t, q, 2)
}

func TestListQueryOptionalFilters(t *testing.T) {
	q := listQuery(ListFilter{
		TenantID: "t1",
		Status:   "open",
		Urgency:  "high",
		Source:   "email",
	})

	keys := make([]string, 0, len(q))
	for _, e := range q {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"tenant_id", "deleted_at", "status", "urgency", "source"}, keys)
}
