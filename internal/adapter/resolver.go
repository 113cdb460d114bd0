package adapter

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// IMAP servers for well-known mail providers
var knownIMAPServers = map[string]string{
	"gmail.com":      "imap.gmail.com:993",
	"googlemail.com": "imap.gmail.com:993",
	"outlook.com":    "outlook.office365.com:993",
	"hotmail.com":    "outlook.office365.com:993",
	"live.com":       "outlook.office365.com:993",
	"msn.com":        "outlook.office365.com:993",
	"yahoo.com":      "imap.mail.yahoo.com:993",
	"yahoo.co.uk":    "imap.mail.yahoo.com:993",
	"yandex.ru":      "imap.yandex.ru:993",
	"yandex.com":     "imap.yandex.com:993",
	"mail.ru":        "imap.mail.ru:993",
	"bk.ru":          "imap.mail.ru:993",
	"list.ru":        "imap.mail.ru:993",
	"inbox.ru":       "imap.mail.ru:993",
	"icloud.com":     "imap.mail.me.com:993",
	"me.com":         "imap.mail.me.com:993",
	"mac.com":        "imap.mail.me.com:993",
	"aol.com":        "imap.aol.com:993",
	"zoho.com":       "imap.zoho.com:993",
	"fastmail.com":   "imap.fastmail.com:993",
	"gmx.com":        "imap.gmx.com:993",
	"gmx.de":         "imap.gmx.net:993",
	"web.de":         "imap.web.de:993",
	"t-online.de":    "secureimap.t-online.de:993",
	"rambler.ru":     "imap.rambler.ru:993",
}

// ResolveIMAPServer determines the IMAP host and port for an email address.
// Known providers resolve immediately; unknown domains are probed with common
// host patterns and MX records before falling back to imap.<domain>.
func ResolveIMAPServer(email string) (string, int, error) {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("invalid email format: %s", email)
	}

	domain := strings.ToLower(parts[1])

	if server, ok := knownIMAPServers[domain]; ok {
		return splitServer(server)
	}

	candidates := []string{
		"imap." + domain,
		"mail." + domain,
		domain,
	}

	for _, host := range candidates {
		if probeIMAPServer(host, 993) {
			return host, 993, nil
		}
	}

	if host, err := resolveViaMX(domain); err == nil {
		return host, 993, nil
	}

	// Fallback; verification will catch it if the guess is wrong
	return "imap." + domain, 993, nil
}

func splitServer(server string) (string, int, error) {
	host, _, err := net.SplitHostPort(server)
	if err != nil {
		return "", 0, fmt.Errorf("failed to parse server address: %w", err)
	}
	return host, 993, nil
}

// probeIMAPServer checks if an IMAP server accepts TCP connections
func probeIMAPServer(host string, port int) bool {
	address := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", address, 3*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// resolveViaMX derives an IMAP host from the domain's MX records,
// e.g. mx.example.com -> imap.example.com
func resolveViaMX(domain string) (string, error) {
	mxRecords, err := net.LookupMX(domain)
	if err != nil || len(mxRecords) == 0 {
		return "", fmt.Errorf("no MX records found for %s", domain)
	}

	mxHost := strings.TrimSuffix(mxRecords[0].Host, ".")

	parts := strings.SplitN(mxHost, ".", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("could not determine IMAP server for %s", domain)
	}

	baseDomain := parts[1]
	for _, prefix := range []string{"imap.", "mail."} {
		host := prefix + baseDomain
		if probeIMAPServer(host, 993) {
			return host, nil
		}
	}

	return "", fmt.Errorf("could not determine IMAP server for %s", domain)
}
