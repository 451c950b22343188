package ports

import (
	"sync"

	"github.com/ranstack/rrcue/internal/cell"
	"github.com/ranstack/rrcue/internal/event"
)

// FakePHY is an in-memory PHY double for tests: StartCellSearch/
// StartCellSelect record the pending callback instead of calling it, so
// a test can deliver a completion synchronously with FireCellSearch /
// FireCellSelect. Grounded on internal/sbi/fake_scheduler.go's
// record-then-fire idiom.
type FakePHY struct {
	mu sync.Mutex

	AcceptSearch bool
	AcceptSelect bool
	InSync       bool
	Camping      bool
	ResetCount   int

	pendingSearch func(event.CellSearchResult)
	pendingSelect func(event.CellSelectResult)
	lastTarget    cell.ID
}

func NewFakePHY() *FakePHY {
	return &FakePHY{AcceptSearch: true, AcceptSelect: true}
}

func (f *FakePHY) StartCellSearch(onResult func(event.CellSearchResult)) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.AcceptSearch {
		return false
	}
	f.pendingSearch = onResult
	return true
}

func (f *FakePHY) StartCellSelect(target cell.ID, onResult func(event.CellSelectResult)) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.AcceptSelect {
		return false
	}
	f.lastTarget = target
	f.pendingSelect = onResult
	return true
}

func (f *FakePHY) IsInSync() bool      { f.mu.Lock(); defer f.mu.Unlock(); return f.InSync }
func (f *FakePHY) CellIsCamping() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.Camping }
func (f *FakePHY) Reset()              { f.mu.Lock(); defer f.mu.Unlock(); f.ResetCount++ }

// FireCellSearch invokes the most recently registered cell-search
// completion callback, if any.
func (f *FakePHY) FireCellSearch(res event.CellSearchResult) {
	f.mu.Lock()
	cb := f.pendingSearch
	f.pendingSearch = nil
	f.mu.Unlock()
	if cb != nil {
		cb(res)
	}
}

// FireCellSelect invokes the most recently registered cell-select
// completion callback, if any.
func (f *FakePHY) FireCellSelect(res event.CellSelectResult) {
	f.mu.Lock()
	cb := f.pendingSelect
	f.pendingSelect = nil
	f.mu.Unlock()
	if cb != nil {
		cb(res)
	}
}

func (f *FakePHY) LastSelectTarget() cell.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTarget
}

// FakeMAC records every call it receives.
type FakeMAC struct {
	mu sync.Mutex

	BCCHCalls    []struct{ TTI, Length int }
	PCCHStarted  int
	ResetCount   int
	RNTIsCleared int
	HORNTI       uint32
	HOPCI        uint16
	ContHO       int
	NonContHO    int
	LastPreamble uint8
	LastMask     uint32
	UplinkWaits  int
	RNTIs        RNTIs
}

func NewFakeMAC() *FakeMAC { return &FakeMAC{} }

func (f *FakeMAC) BCCHStartRx(tti, length int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BCCHCalls = append(f.BCCHCalls, struct{ TTI, Length int }{tti, length})
}
func (f *FakeMAC) PCCHStartRx()  { f.mu.Lock(); defer f.mu.Unlock(); f.PCCHStarted++ }
func (f *FakeMAC) Reset()        { f.mu.Lock(); defer f.mu.Unlock(); f.ResetCount++ }
func (f *FakeMAC) ClearRNTIs()   { f.mu.Lock(); defer f.mu.Unlock(); f.RNTIsCleared++ }
func (f *FakeMAC) SetHORNTI(rnti uint32, pci uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.HORNTI, f.HOPCI = rnti, pci
}
func (f *FakeMAC) StartContHO() { f.mu.Lock(); defer f.mu.Unlock(); f.ContHO++ }
func (f *FakeMAC) StartNonContHO(preamble uint8, mask uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NonContHO++
	f.LastPreamble, f.LastMask = preamble, mask
}
func (f *FakeMAC) WaitUplink() { f.mu.Lock(); defer f.mu.Unlock(); f.UplinkWaits++ }
func (f *FakeMAC) GetRNTIs() RNTIs {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.RNTIs
}

// FakeRLC records suspend/reestablish/stop calls and lets a test drive
// AllSRBsFlushed.
type FakeRLC struct {
	mu sync.Mutex

	ReestablishCount int
	Suspended        []int
	Bearers          map[int]bool
	Stopped          int
	Metrics          RLCMetrics
}

func NewFakeRLC() *FakeRLC { return &FakeRLC{Bearers: make(map[int]bool)} }

func (f *FakeRLC) Reestablish() { f.mu.Lock(); defer f.mu.Unlock(); f.ReestablishCount++ }
func (f *FakeRLC) SuspendBearer(lcid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Suspended = append(f.Suspended, lcid)
}
func (f *FakeRLC) HasBearer(lcid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Bearers[lcid]
}
func (f *FakeRLC) Stop() { f.mu.Lock(); defer f.mu.Unlock(); f.Stopped++ }
func (f *FakeRLC) GetMetrics() RLCMetrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Metrics
}

// FakePDCP records security reconfigurations and written SDUs.
type FakePDCP struct {
	mu sync.Mutex

	ReestablishCount int
	LastSecurity     SecurityConfig
	SecurityApplied  int
	Written          [][]byte
}

func NewFakePDCP() *FakePDCP { return &FakePDCP{} }

func (f *FakePDCP) Reestablish() { f.mu.Lock(); defer f.mu.Unlock(); f.ReestablishCount++ }
func (f *FakePDCP) ConfigSecurityAll(sec SecurityConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LastSecurity = sec
	f.SecurityApplied++
}
func (f *FakePDCP) WriteSDU(lcid int, buf []byte, blocking bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Written = append(f.Written, buf)
	return nil
}

// FakeGW records interface setup requests.
type FakeGW struct {
	mu  sync.Mutex
	Set int
}

func NewFakeGW() *FakeGW { return &FakeGW{} }

func (f *FakeGW) SetupIfAddr(lcid int, pdnType string, ipv4, ipv6 string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Set++
	return nil
}

// FakeUSIM returns a fixed SecurityConfig, or Err if set.
type FakeUSIM struct {
	mu  sync.Mutex
	Sec SecurityConfig
	Err error
}

func NewFakeUSIM() *FakeUSIM { return &FakeUSIM{} }

func (f *FakeUSIM) GenerateASKeysHO(targetPCI uint16, earfcn uint32, ncc uint8) (SecurityConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Sec, f.Err
}

// FakeNAS records upward notifications and lets a test drive
// IsAttached/Paging outcomes.
type FakeNAS struct {
	mu sync.Mutex

	Attached         bool
	PagingOK         bool
	PLMNResults      []cell.PLMNTAC
	PLMNCount        int
	ConnReqResults   []bool
	LastBarring      BarringKind
	PagingCalls      [][2]uint32
}

func NewFakeNAS() *FakeNAS { return &FakeNAS{Attached: true, PagingOK: true} }

func (f *FakeNAS) PLMNSearchCompleted(found []cell.PLMNTAC, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PLMNResults = found
	f.PLMNCount = n
}
func (f *FakeNAS) ConnectionRequestCompleted(ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConnReqResults = append(f.ConnReqResults, ok)
}
func (f *FakeNAS) Paging(sTMSI [2]uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PagingCalls = append(f.PagingCalls, sTMSI)
	return f.PagingOK
}
func (f *FakeNAS) SetBarring(kind BarringKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LastBarring = kind
}
func (f *FakeNAS) IsAttached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Attached
}
