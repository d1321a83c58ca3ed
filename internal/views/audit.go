package views

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/eventlog"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/refresh"
)

const (
	AuditLogView = "audit-log"

	defaultAuditLimit = 200
)

// ChainReader supplies the block and transaction lookups used to enrich
// audit entries.
type ChainReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type auditSource struct {
	contract contract.Name
	event    string
	entity   string
}

// Hospital admin events are left out; they duplicate HospitalRegistered.
var auditSources = []auditSource{
	{contract.Doctor, "RoleGranted", "system"},
	{contract.Doctor, "RoleRevoked", "system"},
	{contract.Hospital, "HospitalRegistered", "hospital"},
	{contract.Hospital, "HospitalDeactivated", "hospital"},
	{contract.Doctor, "DoctorRegistered", "doctor"},
	{contract.EMR, "InsuranceAdminAdded", "insurance"},
	{contract.EMR, "InsuranceAdminUpdated", "insurance"},
	{contract.EMR, "InsuranceAdminRemoved", "insurance"},
	{contract.EMR, "ResearchAdminAdded", "research"},
	{contract.EMR, "ResearchAdminUpdated", "research"},
	{contract.EMR, "ResearchAdminRemoved", "research"},
}

// AuditTitle renders the one line summary of an event.
func AuditTitle(e model.LogEntry) string {
	short := func(h common.Hash) string { return h.Hex()[:10] + "…" }
	switch e.Event {
	case "RoleGranted", "RoleRevoked":
		role, _ := e.Bytes32("role")
		account, _ := e.Address("account")
		dir := "to"
		if e.Event == "RoleRevoked" {
			dir = "from"
		}
		return fmt.Sprintf("%s(%s) %s %s", e.Event, short(role), dir, account.Hex())
	case "HospitalRegistered", "HospitalDeactivated":
		addr, _ := e.Address("hospitalAddress")
		return e.Event + " " + addr.Hex()
	case "DoctorRegistered":
		addr, _ := e.Address("doctorAddress")
		return e.Event + " " + addr.Hex()
	}
	return e.Event
}

type auditLoader struct {
	rt      *Runtime
	chain   ChainReader
	limit   int
	times   *blockTimes
	senders *cache.Cache
}

// AuditLog loads the newest contract events across the registries, capped
// at the configured limit, with sender and block time attached. Filtering
// happens at read time with FilterAudit.
func AuditLog(rt *Runtime, chain ChainReader) refresh.Loader[[]model.AuditEntry] {
	limit := rt.AuditLimit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	l := &auditLoader{
		rt:    rt,
		chain: chain,
		limit: limit,
		times: newBlockTimes(chain),
		// transactions are immutable once mined
		senders: cache.New(time.Hour, 10*time.Minute),
	}
	return l.load
}

func (l *auditLoader) load(ctx context.Context) (refresh.Result[[]model.AuditEntry], error) {
	var res refresh.Result[[]model.AuditEntry]
	head, err := l.rt.Head.BlockNumber(ctx)
	if err != nil {
		return res, fmt.Errorf("read head block: %w", err)
	}

	var filters []eventlog.Filter
	var entities []string
	for _, s := range auditSources {
		f, err := l.rt.Filter(s.contract, s.event)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s events unavailable: %v", s.event, err))
			continue
		}
		filters = append(filters, f)
		entities = append(entities, s.entity)
	}
	batch := l.rt.Fetcher.FetchAll(ctx, filters, head)
	res.Warnings = append(res.Warnings, batch.Warnings...)

	var entries []model.AuditEntry
	for i, logs := range batch.Logs {
		for _, e := range logs {
			entries = append(entries, model.AuditEntry{
				Event:    e.Event,
				Entity:   entities[i],
				Title:    AuditTitle(e),
				TxHash:   e.TxHash,
				Block:    e.BlockNumber,
				LogIndex: e.LogIndex,
				Args:     auditArgs(e.Args),
			})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Block != entries[j].Block {
			return entries[i].Block > entries[j].Block
		}
		return entries[i].LogIndex > entries[j].LogIndex
	})
	if len(entries) > l.limit {
		entries = entries[:l.limit]
	}

	if l.chain != nil {
		res.Warnings = append(res.Warnings, l.enrich(ctx, entries)...)
	}
	res.Data = entries
	res.Block = head
	return res, nil
}

// auditArgs renders argument values as strings so bytes32 and big
// integers read naturally in JSON.
func auditArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		switch t := v.(type) {
		case [32]byte:
			out[k] = common.Hash(t).Hex()
		case common.Address:
			out[k] = t.Hex()
		case *big.Int:
			out[k] = t.String()
		default:
			out[k] = v
		}
	}
	return out
}

// enrich fills Actor and Timestamp. Lookup failures leave the fields empty
// and are reported once per kind.
func (l *auditLoader) enrich(ctx context.Context, entries []model.AuditEntry) []string {
	var signer types.Signer
	if id, err := l.chain.ChainID(ctx); err == nil {
		signer = types.LatestSignerForChainID(id)
	}

	var (
		mu         sync.Mutex
		headerErrs int
		senderErrs int
	)
	workers := l.rt.StoreOptions.LiveConcurrency
	if workers <= 0 {
		workers = 8
	}
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i := range entries {
		e := &entries[i]
		g.Go(func() error {
			ts, err := l.times.At(ctx, e.Block)
			if err != nil {
				mu.Lock()
				headerErrs++
				mu.Unlock()
			} else {
				e.Timestamp = ts
			}
			if signer == nil {
				return nil
			}
			from, err := l.sender(ctx, signer, e.TxHash)
			if err != nil {
				mu.Lock()
				senderErrs++
				mu.Unlock()
				return nil
			}
			e.Actor = &from
			return nil
		})
	}
	_ = g.Wait()

	var warnings []string
	if signer == nil {
		warnings = append(warnings, "transaction senders unavailable: chain id lookup failed")
	}
	if headerErrs > 0 {
		warnings = append(warnings, fmt.Sprintf("block times unavailable for %d events", headerErrs))
	}
	if senderErrs > 0 {
		warnings = append(warnings, fmt.Sprintf("transaction senders unavailable for %d events", senderErrs))
	}
	return warnings
}

func (l *auditLoader) sender(ctx context.Context, signer types.Signer, hash common.Hash) (common.Address, error) {
	key := hash.Hex()
	if v, ok := l.senders.Get(key); ok {
		return v.(common.Address), nil
	}
	tx, _, err := l.chain.TransactionByHash(ctx, hash)
	if err != nil {
		return common.Address{}, err
	}
	from, err := types.Sender(signer, tx)
	if err != nil {
		return common.Address{}, err
	}
	l.senders.SetDefault(key, from)
	return from, nil
}

// FilterAudit applies f to entries, keeping their order. Time bounds are
// unix seconds and skip entries without a timestamp.
func FilterAudit(entries []model.AuditEntry, f model.AuditFilter) []model.AuditEntry {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]model.AuditEntry, 0, len(entries))
	for _, e := range entries {
		if f.Event != "" && f.Event != "all" && e.Event != f.Event {
			continue
		}
		if f.Entity != "" && f.Entity != "all" && e.Entity != f.Entity {
			continue
		}
		if f.From != 0 && e.Timestamp < f.From {
			continue
		}
		if f.To != 0 && e.Timestamp > f.To {
			continue
		}
		if search != "" && !auditMatches(e, search) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func auditMatches(e model.AuditEntry, search string) bool {
	fields := []string{e.Event, e.Title, e.TxHash.Hex()}
	if e.Actor != nil {
		fields = append(fields, e.Actor.Hex())
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}
