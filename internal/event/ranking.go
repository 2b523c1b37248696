package event

import "sort"

// RankQueue returns the entries in playback order: vote count descending,
// then insertion time ascending, then track id. The function is pure and
// deterministic; every client recomputes it on each ledger change and the
// coordinator's next-track decision depends on all of them agreeing.
func RankQueue(entries []TrackEntry) []TrackEntry {
	out := make([]TrackEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].VoteCount != out[j].VoteCount {
			return out[i].VoteCount > out[j].VoteCount
		}
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].Track.TrackID < out[j].Track.TrackID
	})
	return out
}

// NextTrack picks the head of the ranked queue, skipping excludeID.
// Advance decisions exclude the just-finished track so that votes cast
// during playback cannot immediately resurrect it.
func NextTrack(entries []TrackEntry, excludeID string) *TrackEntry {
	for _, e := range RankQueue(entries) {
		if e.Track.TrackID == excludeID {
			continue
		}
		next := e
		return &next
	}
	return nil
}
