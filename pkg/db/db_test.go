package db

import (
	"testing"

	"github.com/railzwaylabs/subsync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialector(t *testing.T) {
	for _, driver := range []string{"postgres", "mysql", "sqlite"} {
		d, err := Dialector(config.DatabaseConfig{Driver: driver, DSN: "x"})
		require.NoError(t, err, driver)
		assert.Equal(t, driver, d.Name())
	}

	_, err := Dialector(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}
