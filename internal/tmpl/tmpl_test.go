package tmpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SimpleSubstitution(t *testing.T) {
	e, err := Render(`/bin/check_ping -H {{host}} -c {{count}}`, `Ping {{host}}`,
		map[string]string{"host": "10.0.0.1", "count": "5"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/check_ping", "-H", "10.0.0.1", "-c", "5"}, e.Argv)
	assert.Equal(t, "Ping 10.0.0.1", e.Description)
}

func TestRender_QuotedArgPreserved(t *testing.T) {
	e, err := Render(`/bin/check_http -H {{host}} -e "{{expect}}"`, "",
		map[string]string{"host": "example.com", "expect": "200 OK"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/check_http", "-H", "example.com", "-e", "200 OK"}, e.Argv)
}

func TestRender_ConditionalWithElse(t *testing.T) {
	tmplArgv := `/bin/check_tcp -H {{host}} {% if ssl %}-S{% else %}-p 80{% endif %}`

	withSSL, err := Render(tmplArgv, "", map[string]string{"host": "h", "ssl": "1"})
	require.NoError(t, err)
	assert.Contains(t, withSSL.Argv, "-S")

	withoutSSL, err := Render(tmplArgv, "", map[string]string{"host": "h"})
	require.NoError(t, err)
	assert.Contains(t, withoutSSL.Argv, "80")
}

func TestRender_EmptyArgvIsError(t *testing.T) {
	_, err := Render("   ", "", nil)
	require.Error(t, err)
}

func TestCache_PutGetFlush(t *testing.T) {
	c := NewCache()
	c.Put(1, Expansion{Argv: []string{"x"}, Description: "d"})

	e, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, "d", e.Description)

	c.Flush(1)
	_, ok = c.Get(1)
	assert.False(t, ok)
}

func TestCache_FlushAll(t *testing.T) {
	c := NewCache()
	c.Put(1, Expansion{})
	c.Put(2, Expansion{})
	c.FlushAll()
	_, ok := c.Get(1)
	assert.False(t, ok)
	_, ok = c.Get(2)
	assert.False(t, ok)
}
