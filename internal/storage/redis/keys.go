package redis

import (
	"fmt"
	"strings"
)

// sessionKey returns the Redis key holding the reservation token for name
func (s *Registry) sessionKey(name string) string {
	return fmt.Sprintf("%s:session:%s", s.cfg.KeyPrefix, name)
}

// sessionPattern matches every session key under the configured prefix
func (s *Registry) sessionPattern() string {
	return fmt.Sprintf("%s:session:*", s.cfg.KeyPrefix)
}

// nameFromKey strips the session key prefix
func (s *Registry) nameFromKey(key string) string {
	return strings.TrimPrefix(key, fmt.Sprintf("%s:session:", s.cfg.KeyPrefix))
}
