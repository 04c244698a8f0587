package config

import (
	"fmt"
	"net"
	"strings"
)

// validateCIDRList checks CIDR or IP entries and rejects networks that
// would trust every peer.
func validateCIDRList(key string, entries []string) error {
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if ip, ipnet, err := net.ParseCIDR(entry); err == nil {
			if ones, _ := ipnet.Mask.Size(); ones == 0 {
				return fmt.Errorf("%s contains forbidden CIDR %q (trust-all is not allowed)", key, entry)
			}
			if ip.IsUnspecified() {
				return fmt.Errorf("%s contains unspecified address %q", key, entry)
			}
			continue
		}

		ip := net.ParseIP(entry)
		if ip == nil {
			return fmt.Errorf("invalid %s entry %q (must be CIDR or IP)", key, entry)
		}
		if ip.IsUnspecified() {
			return fmt.Errorf("%s contains unspecified address %q", key, entry)
		}
	}
	return nil
}
