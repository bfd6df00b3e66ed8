package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/hostel-noc-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "noc", Password: "secret", Name: "hostel_admin", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5432 user=noc password=secret dbname=hostel_admin sslmode=disable", dsn)
}
