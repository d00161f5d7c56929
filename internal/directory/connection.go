/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package directory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/sapcc/go-bits/logg"
)

// Connection is the gateway to the LDAP server. All reads and writes of the
// view engine go through this interface. In tests, the real implementation
// is swapped for an in-memory double.
type Connection interface {
	// Add creates a new entry. Fails with kind Conflict if the DN exists.
	Add(dn string, attrs Addlist) error
	// Search returns the entries below baseDN that match the filter, with
	// exactly the requested attributes. A BASE search on a missing DN fails
	// with kind NotFound; an empty result is valid for the other scopes.
	Search(baseDN string, scope Scope, filter string, attrs []string) ([]Fetch, error)
	// Modify applies a modlist to an existing entry. Entries are applied left
	// to right per attribute.
	Modify(dn string, ml Modlist) error
	// Delete removes an entry. Fails with kind NotFound if absent.
	Delete(dn string) error
	// Bind authenticates the given credentials on a transient connection that
	// is closed before this method returns. It never affects the service
	// connection used by the other methods.
	Bind(dn, password string) error
	// Close tears down the service connection.
	Close() error
}

// ConnectionOptions contains all configuration values that we need to
// connect to the LDAP server.
type ConnectionOptions struct {
	ServerURI    string        //e.g. "ldap://localhost"
	BindDN       string        //for the service user
	BindPassword string        //for the service user
	Timeout      time.Duration //per-operation timeout
}

type connectionImpl struct {
	opts ConnectionOptions
	//The mutex serializes use of the service connection. LDAP connections are
	//not multiplexed; one in-flight operation at a time is the contract.
	mutex sync.Mutex
	conn  *goldap.Conn
}

// Connect establishes the long-lived service connection to the LDAP server.
func Connect(opts ConnectionOptions) (Connection, error) {
	c := &connectionImpl{opts: opts}
	err := c.getConn(0, 5*time.Millisecond)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *connectionImpl) getConn(retryCounter int, sleepInterval time.Duration) error {
	//the LDAP server may be starting up in parallel with us -> when initially
	//connecting, retry up to 10 times with exponential backoff
	if retryCounter == 10 {
		return &Error{Kind: KindTransport, cause: fmt.Errorf("giving up on LDAP server %s after 10 connection attempts", c.opts.ServerURI)}
	}
	time.Sleep(sleepInterval)

	conn, err := c.dial()
	if err == nil {
		err = conn.Bind(c.opts.BindDN, c.opts.BindPassword)
	}
	if err != nil {
		logg.Info("cannot connect to LDAP server %s (attempt %d/10): %s", c.opts.ServerURI, retryCounter+1, err.Error())
		return c.getConn(retryCounter+1, sleepInterval*2)
	}

	logg.Info("connected to LDAP server %s as %s", c.opts.ServerURI, c.opts.BindDN)
	c.conn = conn
	return nil
}

func (c *connectionImpl) dial() (*goldap.Conn, error) {
	conn, err := goldap.DialURL(c.opts.ServerURI)
	if err != nil {
		return nil, err
	}
	if c.opts.Timeout > 0 {
		conn.SetTimeout(c.opts.Timeout)
	}
	return conn, nil
}

// Add implements the Connection interface.
func (c *connectionImpl) Add(dn string, attrs Addlist) error {
	req := goldap.AddRequest{DN: dn}
	for _, name := range sortedKeys(attrs) {
		values := attrs[name]
		if len(values) == 0 {
			continue
		}
		req.Attributes = append(req.Attributes, goldap.Attribute{Type: name, Vals: values})
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	return wrapError(dn, c.conn.Add(&req))
}

// Search implements the Connection interface.
func (c *connectionImpl) Search(baseDN string, scope Scope, filter string, attrs []string) ([]Fetch, error) {
	if filter == "" {
		filter = "(objectClass=*)"
	}
	req := goldap.NewSearchRequest(baseDN, goldapScope(scope), goldap.NeverDerefAliases,
		0, 0, false, filter, attrs, nil)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.conn.Search(req)
	if err != nil {
		return nil, wrapError(baseDN, err)
	}

	result := make([]Fetch, len(res.Entries))
	for idx, entry := range res.Entries {
		values := make(map[string][]string, len(entry.Attributes))
		for _, attr := range entry.Attributes {
			values[attr.Name] = attr.Values
		}
		result[idx] = Fetch{DN: entry.DN, Values: values}
	}
	return result, nil
}

// Modify implements the Connection interface.
func (c *connectionImpl) Modify(dn string, ml Modlist) error {
	if ml.IsEmpty() {
		return nil
	}

	req := goldap.NewModifyRequest(dn, nil)
	for _, attr := range sortedKeys(ml) {
		for _, mod := range ml[attr] {
			switch mod.Op {
			case ModAdd:
				req.Add(attr, mod.Values)
			case ModDelete:
				req.Delete(attr, mod.Values)
			case ModReplace:
				req.Replace(attr, mod.Values)
			case ModIncrement:
				if len(mod.Values) > 0 {
					req.Increment(attr, mod.Values[0])
				}
			}
		}
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	return wrapError(dn, c.conn.Modify(req))
}

// Delete implements the Connection interface.
func (c *connectionImpl) Delete(dn string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return wrapError(dn, c.conn.Del(goldap.NewDelRequest(dn, nil)))
}

// Bind implements the Connection interface.
func (c *connectionImpl) Bind(dn, password string) error {
	//empty passwords would result in an unauthenticated bind that the server
	//reports as success; reject them before they reach the wire
	if password == "" {
		return &Error{Kind: KindInvalidCredentials, DN: dn, cause: fmt.Errorf("refusing bind with empty password")}
	}

	conn, err := c.dial()
	if err != nil {
		return wrapError(dn, err)
	}
	defer conn.Close()
	return wrapError(dn, conn.Bind(dn, password))
}

// Close implements the Connection interface.
func (c *connectionImpl) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.conn.Close()
}

func goldapScope(scope Scope) int {
	switch scope {
	case ScopeOne:
		return goldap.ScopeSingleLevel
	case ScopeSub:
		return goldap.ScopeWholeSubtree
	default:
		return goldap.ScopeBaseObject
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
