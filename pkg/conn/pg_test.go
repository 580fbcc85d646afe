package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		want string
	}{
		{"defaults", Option{}, "postgres://localhost:5432?sslmode=disable"},
		{"full", Option{Host: "db", Port: 6543, User: "sim", Password: "p@ss", Database: "lobsim", SSLMode: "require", Params: map[string]string{"application_name": "simulate", "": "x"}},
			"postgres://sim:p%40ss@db:6543/lobsim?application_name=simulate&sslmode=require"},
		{"user only", Option{User: "sim"}, "postgres://sim@localhost:5432?sslmode=disable"},
		{"conn string", Option{ConnString: "host=x", Host: "ignored"}, "host=x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opt.DSN())
		})
	}
}
