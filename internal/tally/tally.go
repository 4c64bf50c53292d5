// Package tally implements instant-runoff / single-transferable-vote
// tabulation. Tabulate is a pure function: identical inputs and seed always
// produce identical output, so every scan runs over explicitly ordered
// slices, never map iteration.
package tally

import (
	"sort"

	"github.com/zeebo/xxh3"
)

type TransferReason string

const (
	TransferSurplus     TransferReason = "surplus"
	TransferElimination TransferReason = "elimination"
)

// Transfer records votes moving from an elected or eliminated candidate to a
// next preference.
type Transfer struct {
	From   string         `json:"from"`
	To     string         `json:"to"`
	Amount float64        `json:"amount"`
	Reason TransferReason `json:"reason"`
}

// Round is the trace of one tabulation round. Counts covers every candidate
// still remaining at the start of the round.
type Round struct {
	Number     int                `json:"number"`
	Counts     map[string]float64 `json:"counts"`
	Elected    []string           `json:"elected"`
	Eliminated []string           `json:"eliminated"`
	Transfers  []Transfer         `json:"transfers"`
}

type Elected struct {
	ID    string  `json:"id"`
	Votes float64 `json:"votes"`
}

type Result struct {
	Elected []Elected `json:"elected"`
	Rounds  []Round   `json:"rounds"`
}

// ballot carries a fractional weight. Surplus transfers scale the weight;
// the ballot itself is never duplicated.
type ballot struct {
	prefs   []string
	weight  float64
	current string
}

// Tabulate elects up to seats candidates from ranked ballots.
//
// Quota is majority (floor(n/2)+1) for a single seat and Droop
// (floor(n/(seats+1))+1) otherwise, over ballots that carry at least one
// valid preference. Candidates clearing quota are elected in ascending
// identifier order; surplus is redistributed at fractional weight. When no
// candidate clears quota, exactly one candidate is eliminated per round via
// the deterministic tie-break (round history, then first-preference counts,
// then a seeded hash, then identifier order). If eliminations shrink the
// pool to the number of unfilled seats, the remaining candidates are elected
// in identifier order.
func Tabulate(candidateIDs []string, rankings [][]string, seats int, seed string) Result {
	if seats < 1 {
		seats = 1
	}

	valid := make(map[string]bool, len(candidateIDs))
	remaining := make([]string, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		if id == "" || valid[id] {
			continue
		}
		valid[id] = true
		remaining = append(remaining, id)
	}
	sort.Strings(remaining)

	// Ballots may reference candidates that no longer exist; filter them to
	// valid, deduplicated preferences before anything else.
	live := make([]*ballot, 0, len(rankings))
	for _, prefs := range rankings {
		seen := make(map[string]bool, len(prefs))
		kept := make([]string, 0, len(prefs))
		for _, id := range prefs {
			if valid[id] && !seen[id] {
				seen[id] = true
				kept = append(kept, id)
			}
		}
		if len(kept) > 0 {
			live = append(live, &ballot{prefs: kept, weight: 1})
		}
	}

	if len(remaining) == 0 || len(live) == 0 {
		return Result{Elected: []Elected{}, Rounds: []Round{}}
	}

	total := len(live)
	var quota float64
	if seats == 1 {
		quota = float64(total/2 + 1)
	} else {
		quota = float64(total/(seats+1) + 1)
	}

	inRace := make(map[string]bool, len(remaining))
	for _, id := range remaining {
		inRace[id] = true
	}
	history := make(map[string][]float64, len(remaining))

	result := Result{Elected: []Elected{}, Rounds: []Round{}}

	for len(result.Elected) < seats && len(remaining) > 0 {
		counts := make(map[string]float64, len(remaining))
		for _, id := range remaining {
			counts[id] = 0
		}
		kept := live[:0]
		for _, b := range live {
			b.current = firstPreference(b.prefs, inRace)
			if b.current == "" {
				continue // exhausted, drops out of the count
			}
			counts[b.current] += b.weight
			kept = append(kept, b)
		}
		live = kept

		for _, id := range remaining {
			history[id] = append(history[id], counts[id])
		}

		round := Round{
			Number: len(result.Rounds) + 1,
			Counts: counts,
		}

		var winners []string
		for _, id := range remaining {
			if counts[id] >= quota {
				winners = append(winners, id)
			}
		}

		switch {
		case len(winners) > 0:
			for _, w := range winners {
				if len(result.Elected) >= seats {
					break
				}
				votes := counts[w]
				result.Elected = append(result.Elected, Elected{ID: w, Votes: votes})
				round.Elected = append(round.Elected, w)
				remaining = remove(remaining, w)
				delete(inRace, w)

				surplus := votes - quota
				if seats > 1 && surplus > 0 && votes > 0 && len(remaining) > 0 {
					factor := surplus / votes
					transfers := make(map[string]float64)
					kept := live[:0]
					for _, b := range live {
						if b.current != w {
							kept = append(kept, b)
							continue
						}
						next := firstPreference(b.prefs, inRace)
						if next == "" {
							continue
						}
						b.weight *= factor
						b.current = next
						transfers[next] += b.weight
						kept = append(kept, b)
					}
					live = kept
					round.Transfers = append(round.Transfers, sortedTransfers(w, transfers, TransferSurplus)...)
				} else {
					// No surplus to move: the winner's ballots are used up.
					kept := live[:0]
					for _, b := range live {
						if b.current != w {
							kept = append(kept, b)
						}
					}
					live = kept
				}
			}

		case len(remaining)+len(result.Elected) <= seats:
			// Not enough candidates left to be choosy; elect the rest in
			// identifier order.
			for _, id := range remaining {
				result.Elected = append(result.Elected, Elected{ID: id, Votes: counts[id]})
				round.Elected = append(round.Elected, id)
			}
			remaining = remaining[:0]

		default:
			loser := pickLoser(remaining, counts, history, seed)
			round.Eliminated = []string{loser}
			remaining = remove(remaining, loser)
			delete(inRace, loser)

			transfers := make(map[string]float64)
			kept := live[:0]
			for _, b := range live {
				if b.current != loser {
					kept = append(kept, b)
					continue
				}
				next := firstPreference(b.prefs, inRace)
				if next == "" {
					continue
				}
				b.current = next
				transfers[next] += b.weight
				kept = append(kept, b)
			}
			live = kept
			round.Transfers = append(round.Transfers, sortedTransfers(loser, transfers, TransferElimination)...)
		}

		result.Rounds = append(result.Rounds, round)
	}

	if len(result.Elected) > seats {
		result.Elected = result.Elected[:seats]
	}
	return result
}

// firstPreference returns the highest-ranked preference still in the race,
// or "" when the ballot is exhausted.
func firstPreference(prefs []string, inRace map[string]bool) string {
	for _, id := range prefs {
		if inRace[id] {
			return id
		}
	}
	return ""
}

// pickLoser selects exactly one candidate to eliminate among those tied at
// the minimum count. Ties narrow through three stages: counts in
// progressively earlier rounds (most recent difference decides), a seeded
// hash of the candidate id (highest hash eliminated), and finally plain
// identifier order.
func pickLoser(remaining []string, counts map[string]float64, history map[string][]float64, seed string) string {
	min := counts[remaining[0]]
	for _, id := range remaining[1:] {
		if counts[id] < min {
			min = counts[id]
		}
	}
	tied := make([]string, 0, len(remaining))
	for _, id := range remaining {
		if counts[id] == min {
			tied = append(tied, id)
		}
	}
	if len(tied) == 1 {
		return tied[0]
	}

	// All tied candidates have been in the race since round one, so their
	// histories have equal length. Walk backwards from the previous round;
	// at the most recent round where the counts differ, only the weakest
	// stay tied. Round zero is the first-preference count.
	roundsSoFar := len(history[tied[0]])
	for r := roundsSoFar - 2; r >= 0 && len(tied) > 1; r-- {
		low := history[tied[0]][r]
		for _, id := range tied[1:] {
			if history[id][r] < low {
				low = history[id][r]
			}
		}
		narrowed := tied[:0]
		for _, id := range tied {
			if history[id][r] == low {
				narrowed = append(narrowed, id)
			}
		}
		tied = narrowed
	}
	if len(tied) == 1 {
		return tied[0]
	}

	// Seed-dependent pseudo-random stage: the highest hash is eliminated.
	loser := tied[0]
	loserHash := xxh3.HashString(seed + "/" + loser)
	for _, id := range tied[1:] {
		h := xxh3.HashString(seed + "/" + id)
		if h > loserHash || (h == loserHash && id < loser) {
			loser = id
			loserHash = h
		}
	}
	return loser
}

func sortedTransfers(from string, amounts map[string]float64, reason TransferReason) []Transfer {
	if len(amounts) == 0 {
		return nil
	}
	targets := make([]string, 0, len(amounts))
	for to := range amounts {
		targets = append(targets, to)
	}
	sort.Strings(targets)
	out := make([]Transfer, 0, len(targets))
	for _, to := range targets {
		out = append(out, Transfer{From: from, To: to, Amount: amounts[to], Reason: reason})
	}
	return out
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
