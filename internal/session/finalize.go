package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/voicememo/internal/webhook"
)

func buildSessionClosedPayload(s *session, endedAt time.Time, code int, reason string, results []appendResult) webhook.SessionClosedPayload {
	durationSeconds := int64(endedAt.Sub(s.startedAt).Seconds())
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	failed := 0
	for _, r := range results {
		if !r.written {
			failed++
		}
	}
	return webhook.SessionClosedPayload{
		SchemaVersion:   webhook.SessionClosedSchemaVersion,
		SessionID:       s.id,
		DocumentID:      s.documentID,
		DocumentMode:    string(s.descriptor.Mode),
		LanguageCode:    s.descriptor.LanguageCode,
		StartAt:         s.startedAt.UTC().Format(time.RFC3339),
		EndAt:           endedAt.UTC().Format(time.RFC3339),
		DurationSeconds: durationSeconds,
		CloseCode:       code,
		CloseReason:     reason,
		SegmentCount:    len(results),
		FailedAppends:   failed,
		Segments:        buildSessionClosedSegments(s.startedAt, results),
		Transcript:      buildTranscriptText(results),
	}
}

func buildSessionClosedSegments(startedAt time.Time, results []appendResult) []webhook.SessionClosedSegment {
	out := make([]webhook.SessionClosedSegment, 0, len(results))
	for _, r := range results {
		elapsed := r.spokenAt.Sub(startedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		out = append(out, webhook.SessionClosedSegment{
			Index:           r.index,
			SpokenAt:        r.spokenAt.UTC().Format(time.RFC3339),
			Elapsed:         formatElapsedHMS(elapsed),
			Transcript:      r.text,
			DocumentWritten: r.written,
		})
	}
	return out
}

func buildTranscriptText(results []appendResult) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, r.text)
	}
	return strings.Join(lines, "\n")
}

func formatElapsedHMS(d time.Duration) string {
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
