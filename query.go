package evmsqlindex

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// queryHeader is the fixed prefix of every compiled filter_logs
// statement: the projection, the FROM/JOIN, and the block-range +
// canon-only predicate every query carries regardless of its address/
// topic predicates. Matches spec.md §4.6's SQL template.
const queryHeader = `SELECT l.substrate_block_hash, b.ethereum_block_hash, b.block_number,
       b.ethereum_storage_schema, l.transaction_index, l.log_index
FROM logs AS l
INNER JOIN blocks AS b
  ON (b.block_number BETWEEN ? AND ?)
 AND b.substrate_block_hash = l.substrate_block_hash
 AND b.is_canon = 1
WHERE 1`

// queryFooter is the fixed suffix: grouping, ordering, and the row cap.
// 10001 is MAX_RESULTS+1 so a caller can tell "exactly at cap" apart from
// "capped" (spec.md §4.6).
const queryFooter = `
GROUP BY l.substrate_block_hash, l.transaction_index, l.log_index
ORDER BY b.block_number ASC, l.transaction_index ASC, l.log_index ASC
LIMIT 10001`

// normalizeTopics turns the request's per-row topic lists into four
// positional sets, de-duplicated by membership with no cartesian
// expansion (spec.md §4.6). A topic row longer than MaxTopicCount fails
// the whole request with ErrInvalidRequest (P6); no partial work is ever
// committed because this runs before any SQL is built.
//
// nil entries represent a wildcard at that position (Option<Hash> ==
// None); de-duplication preserves first-seen order so BuildQuery's
// output is deterministic for a given input (P7).
func normalizeTopics(topics [][]*common.Hash) ([4][]common.Hash, error) {
	var sets [4][]common.Hash
	var seen [4]map[common.Hash]struct{}
	for i := range seen {
		seen[i] = make(map[common.Hash]struct{})
	}

	for _, row := range topics {
		for i, topic := range row {
			if i >= MaxTopicCount {
				return sets, fmt.Errorf("%w: maximum length is %d", ErrInvalidRequest, MaxTopicCount)
			}
			if topic == nil {
				continue
			}
			if _, dup := seen[i][*topic]; dup {
				continue
			}
			seen[i][*topic] = struct{}{}
			sets[i] = append(sets[i], *topic)
		}
	}
	return sets, nil
}

// BuildQuery compiles a filter_logs request into a parameterized SQL
// statement plus its bind arguments, in from/to/addresses/topic_1..4
// order. Grounded on frontier-sql's build_query: same clause order
// (address, then topic_1..topic_4, emitting "= ?" for a singleton set and
// "IN (...)" for a larger one, nothing for an empty one), same
// determinism guarantee (P7).
func BuildQuery(fromBlock, toBlock uint64, addresses []common.Address, topics [][]*common.Hash) (string, []any, error) {
	sets, err := normalizeTopics(topics)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString(queryHeader)

	args := make([]any, 0, 2+len(addresses)+4)
	args = append(args, int64(fromBlock), int64(toBlock))

	if len(addresses) > 0 {
		sb.WriteString("\n  AND l.address IN (")
		writePlaceholders(&sb, len(addresses))
		sb.WriteString(")")
		for _, a := range addresses {
			args = append(args, a.Bytes())
		}
	}

	for i, set := range sets {
		switch {
		case len(set) == 0:
			// wildcard at this position: contributes nothing.
		case len(set) == 1:
			sb.WriteString(fmt.Sprintf("\n  AND l.topic_%d = ?", i+1))
			args = append(args, set[0].Bytes())
		default:
			sb.WriteString(fmt.Sprintf("\n  AND l.topic_%d IN (", i+1))
			writePlaceholders(&sb, len(set))
			sb.WriteString(")")
			for _, t := range set {
				args = append(args, t.Bytes())
			}
		}
	}

	sb.WriteString(queryFooter)
	return sb.String(), args, nil
}

func writePlaceholders(sb *strings.Builder, n int) {
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("?")
	}
}
