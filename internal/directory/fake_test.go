package directory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
)

var errFakeNetwork = ldap.NewError(ldap.ErrorNetwork, errors.New("connection reset by peer"))

type fakeEntry struct {
	dn       string
	password string
	attrs    map[string][]string
}

func (e fakeEntry) effectiveDN() string {
	if e.dn != "" {
		return e.dn
	}

	if values := e.attrs["distinguishedName"]; len(values) > 0 {
		return values[0]
	}

	return ""
}

func (e fakeEntry) ldapEntry() *ldap.Entry {
	return ldap.NewEntry(e.dn, e.attrs)
}

// fakeDirectory is an in-memory directory implementing Dialer. It counts
// every connection it hands out and every close it receives.
type fakeDirectory struct {
	mu sync.Mutex

	admins  map[string]string
	entries []fakeEntry

	// dialErrs are returned by successive dials; nil entries succeed.
	dialErrs []error
	// failAdminBinds rejects that many administrative binds before accepting.
	failAdminBinds int
	// searchErr, when set, is consulted before every search.
	searchErr func(filter string) error
	// bindErr, when set, is consulted before every bind.
	bindErr func(dn string) error

	dials        int
	opened       int
	closed       int
	doubleClosed int
	binds        []string
	searches     []string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		admins: map[string]string{`CORP\svc-ldap`: "admin-secret"},
	}
}

func (d *fakeDirectory) addUser(dn, password string, attrs map[string][]string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries = append(d.entries, fakeEntry{dn: dn, password: password, attrs: attrs})
}

func (d *fakeDirectory) Dial(ctx context.Context, _ Config) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++

	if len(d.dialErrs) > 0 {
		err := d.dialErrs[0]
		d.dialErrs = d.dialErrs[1:]

		if err != nil {
			return nil, err
		}
	}

	d.opened++

	return &fakeConn{dir: d}, nil
}

func (d *fakeDirectory) stats() (opened, closed, doubleClosed int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.opened, d.closed, d.doubleClosed
}

func (d *fakeDirectory) searchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.searches)
}

func (d *fakeDirectory) bindCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.binds)
}

type fakeConn struct {
	dir    *fakeDirectory
	closed bool
}

func (c *fakeConn) Bind(dn, password string) error {
	d := c.dir

	d.mu.Lock()
	defer d.mu.Unlock()

	d.binds = append(d.binds, dn)

	if d.bindErr != nil {
		if err := d.bindErr(dn); err != nil {
			return err
		}
	}

	if secret, ok := d.admins[dn]; ok {
		if d.failAdminBinds > 0 {
			d.failAdminBinds--

			return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("admin bind rejected"))
		}

		if secret == password {
			return nil
		}
	}

	for _, entry := range d.entries {
		if strings.EqualFold(entry.effectiveDN(), dn) && entry.password == password {
			return nil
		}
	}

	return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
}

func (c *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	d := c.dir

	d.mu.Lock()
	defer d.mu.Unlock()

	d.searches = append(d.searches, req.Filter)

	if d.searchErr != nil {
		if err := d.searchErr(req.Filter); err != nil {
			return nil, err
		}
	}

	result := &ldap.SearchResult{}

	for _, entry := range d.entries {
		if !underBase(entry.effectiveDN(), req.BaseDN) || !matches(entry, req.Filter) {
			continue
		}

		result.Entries = append(result.Entries, entry.ldapEntry())
	}

	return result, nil
}

func (c *fakeConn) Close() error {
	d := c.dir

	d.mu.Lock()
	defer d.mu.Unlock()

	if c.closed {
		d.doubleClosed++

		return errors.New("connection already closed")
	}

	c.closed = true
	d.closed++

	return nil
}

func underBase(dn, base string) bool {
	dn, base = strings.ToLower(dn), strings.ToLower(base)

	return dn == base || strings.HasSuffix(dn, ","+base)
}

// matches reports whether any equality assertion on one of the entry's
// attribute values appears in filter.
func matches(entry fakeEntry, filter string) bool {
	for attr, values := range entry.attrs {
		for _, value := range values {
			if strings.Contains(filter, "("+attr+"="+ldap.EscapeFilter(value)+")") {
				return true
			}
		}
	}

	return false
}

// sleepRecorder records backoff delays without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.delays = append(r.delays, d)

	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]time.Duration(nil), r.delays...)
}

func testConfig(suffixes ...string) Config {
	return Config{
		URL:            "ldap://dc01.corp.local:389",
		BaseDN:         "DC=corp,DC=local",
		SearchBases:    map[string]string{"corp.alt": "DC=corp,DC=alt"},
		BindDN:         `CORP\\svc-ldap`,
		BindPassword:   "admin-secret",
		DomainSuffixes: suffixes,
		ConnectTimeout: 5 * time.Second,
		RetryAttempts:  4,
		RetryBaseDelay: 100 * time.Millisecond,
	}
}
