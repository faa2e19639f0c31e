package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type row struct {
	ID       uint
	ObjectID string
	TenantID string
	Topic    string
}

func dryRun(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{DryRun: true})
	require.NoError(t, err)
	return db
}

func TestScope(t *testing.T) {
	stmt := dryRun(t).Scopes(Scope("acme")).Find(&[]row{}).Statement

	assert.Contains(t, stmt.SQL.String(), "tenant_id = ?")
	assert.Equal(t, []any{"acme"}, stmt.Vars)
}

func TestRequiredScope(t *testing.T) {
	err := dryRun(t).Scopes(RequiredScope("")).Find(&[]row{}).Error
	assert.ErrorIs(t, err, ErrTenantIDRequired)

	stmt := dryRun(t).Scopes(RequiredScope("acme")).Find(&[]row{}).Statement
	assert.NoError(t, stmt.Error)
	assert.Equal(t, []any{"acme"}, stmt.Vars)
}

func TestTopicScope(t *testing.T) {
	stmt := dryRun(t).Scopes(TopicScope("ada@globex.io", "acme", "new-person")).Find(&[]row{}).Statement

	assert.Contains(t, stmt.SQL.String(), "object_id = ? AND tenant_id = ? AND topic = ?")
	assert.Equal(t, []any{"ada@globex.io", "acme", "new-person"}, stmt.Vars)
}
