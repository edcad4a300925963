package minicfg

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type smtpConfig struct {
	BaseConfig

	Enabled   bool   `cfg:"enabled"`
	Host      string `cfg:"host"`
	Port      *int   `cfg:"port"`
	Username  string `cfg:"username;optional"`
	Password  string `cfg:"password;sensitive"`
	FromEmail string `cfg:"from"`
	Timeout   time.Duration
	Ignored   string `cfg:"-"`
	internal  string
}

type notificationConfig struct {
	SMTP     smtpConfig  `cfg:"smtp"`
	Webhooks *smtpConfig `cfg:"webhooks"`
	Nothing  **int       `cfg:"nothing"`
}

func TestSchemaFields(t *testing.T) {
	s, err := schemaFor(reflect.TypeFor[smtpConfig]())
	require.NoError(t, err)

	var keys []string
	for _, f := range s.fields {
		keys = append(keys, f.key)
	}
	assert.Equal(t, []string{"enabled", "host", "port", "username", "password", "from", "Timeout"}, keys)

	port := s.fields[s.byKey["port"]]
	assert.True(t, port.optional)
	assert.True(t, port.pointer)
	assert.Equal(t, reflect.TypeFor[int](), port.typ)
	assert.Equal(t, reflect.TypeFor[*int](), port.declared)

	username := s.fields[s.byKey["username"]]
	assert.True(t, username.optional)
	assert.False(t, username.pointer)

	assert.True(t, s.fields[s.byKey["password"]].sensitive)
	assert.False(t, s.fields[s.byKey["host"]].optional)
}

func TestSchemaCached(t *testing.T) {
	a, err := schemaFor(reflect.TypeFor[smtpConfig]())
	require.NoError(t, err)
	b, err := schemaFor(reflect.TypeFor[smtpConfig]())
	require.NoError(t, err)

	if a != b {
		t.Fatal("expected the same schema instance for the same type")
	}
}

func TestSchemaRejectsNonStruct(t *testing.T) {
	_, err := schemaFor(reflect.TypeFor[map[string]any]())
	assert.Error(t, err)
}

func TestDuplicateKeyDetection(t *testing.T) {
	type duplicates struct {
		Test  string `cfg:"test"`
		Toast string `cfg:"test"`
	}

	_, err := schemaFor(reflect.TypeFor[duplicates]())
	if err == nil {
		t.Fatal("duplicate key was not detected")
	}
}

func TestSchemaLookup(t *testing.T) {
	s, err := schemaFor(reflect.TypeFor[smtpConfig]())
	require.NoError(t, err)

	i, ok := s.lookup("host")
	require.True(t, ok)
	assert.Equal(t, "Host", s.fields[i].name)

	i, ok = s.lookup("HOST")
	require.True(t, ok)
	assert.Equal(t, "Host", s.fields[i].name)

	i, ok = s.lookup("timeout")
	require.True(t, ok)
	assert.Equal(t, "Timeout", s.fields[i].name)

	_, ok = s.lookup("Ignored")
	assert.False(t, ok)

	_, ok = s.lookup("internal")
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		declared reflect.Type
		expected reflect.Type
		optional bool
	}{
		{reflect.TypeFor[int](), reflect.TypeFor[int](), false},
		{reflect.TypeFor[*int](), reflect.TypeFor[int](), true},
		{reflect.TypeFor[*smtpConfig](), reflect.TypeFor[smtpConfig](), true},
		{reflect.TypeFor[**int](), reflect.TypeFor[**int](), false},
		{reflect.TypeFor[[]int](), reflect.TypeFor[[]int](), false},
	}

	for _, c := range cases {
		got, optional := normalize(c.declared)
		if got != c.expected || optional != c.optional {
			t.Fatalf("normalize(%s): expected (%s, %v) got (%s, %v)", c.declared, c.expected, c.optional, got, optional)
		}
	}
}

func TestIsSubConfig(t *testing.T) {
	type plain struct{ A int }

	assert.True(t, isSubConfig(reflect.TypeFor[smtpConfig](), nil))
	assert.False(t, isSubConfig(reflect.TypeFor[plain](), nil))
	assert.True(t, isSubConfig(reflect.TypeFor[plain](), subClassSet{reflect.TypeFor[plain](): {}}))
	assert.False(t, isSubConfig(reflect.TypeFor[*smtpConfig](), nil))
	assert.False(t, isSubConfig(reflect.TypeFor[notificationConfig](), nil))
}
