package main

import (
	"testing"

	goSession "github.com/MrEthical07/goSession"
)

func TestResolveStorage(t *testing.T) {
	cases := []struct {
		name  string
		flag  string
		env   string
		local bool
		want  goSession.StorageBackend
	}{
		{"default persists between runs", "", "", false, goSession.StorageKeyring},
		{"local runs in memory", "", "", true, goSession.StorageMemory},
		{"env wins over default", "", "redis", false, goSession.StorageRedis},
		{"flag wins over env", "memory", "redis", false, goSession.StorageMemory},
		{"flag wins with local", "redis", "", true, goSession.StorageRedis},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := resolveStorage(tc.flag, tc.env, tc.local); got != tc.want {
				t.Fatalf("resolveStorage(%q, %q, %v) = %q, want %q", tc.flag, tc.env, tc.local, got, tc.want)
			}
		})
	}
}
