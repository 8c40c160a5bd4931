package domain

import "strings"

const defaultRiskScore = 1

// riskScores is informational only; detection never reads it.
var riskScores = map[string]int{
	"login":             2,
	"login_attempt":     2,
	"auth":              2,
	"ssh_login":         2,
	"login_failed":      3,
	"port_scan":         4,
	"xss":               6,
	"brute_force":       7,
	"path_traversal":    7,
	"sql_injection":     9,
	"malware":           9,
	"command_injection": 10,
	"rce":               10,
}

func RiskScore(eventType string) int {
	if score, ok := riskScores[strings.ToLower(eventType)]; ok {
		return score
	}
	return defaultRiskScore
}
