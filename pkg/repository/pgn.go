package repository

import (
	"fmt"
	"strings"
	"time"
)

// BuildPGN renders rec as a PGN document from its SAN move list.
func BuildPGN(rec GameRecord) string {
	var b strings.Builder
	date := rec.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	score := rec.Score
	if score == "" {
		score = "*"
	}

	b.WriteString("[Event \"Blitz\"]\n")
	b.WriteString(fmt.Sprintf("[Site \"%s\"]\n", sanitizePGN(rec.GameID)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(rec.WhiteHandle)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(rec.BlackHandle)))
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n", score))
	if tc := pgnTimeControl(rec.TimeControl); tc != "" {
		b.WriteString(fmt.Sprintf("[TimeControl \"%s\"]\n", tc))
	}
	if rec.Variant != "" && rec.Variant != "standard" {
		b.WriteString("[Variant \"Chess960\"]\n")
		b.WriteString("[SetUp \"1\"]\n")
		b.WriteString(fmt.Sprintf("[FEN \"%s\"]\n", sanitizePGN(rec.StartFEN)))
	}
	if rec.Reason != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(rec.Reason)))
	}
	b.WriteString("\n")

	for i := 0; i < len(rec.SAN); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(rec.SAN[i])))
		if i+1 < len(rec.SAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(rec.SAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(score)
	return b.String()
}

// pgnTimeControl turns "3+2" into the PGN "180+2" form.
func pgnTimeControl(tc string) string {
	base, inc, ok := strings.Cut(tc, "+")
	if !ok {
		return ""
	}
	var minutes float64
	if _, err := fmt.Sscanf(base, "%g", &minutes); err != nil {
		return ""
	}
	return fmt.Sprintf("%d+%s", int(minutes*60), inc)
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
