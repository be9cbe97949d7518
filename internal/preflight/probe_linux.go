//go:build linux

package preflight

import (
	"errors"
	"fmt"
	"os/user"
	"path/filepath"
	"slices"
	"strconv"

	"golang.org/x/sys/unix"
)

// Prober inspects device nodes and group membership of the current process
type Prober struct {
	// Root is prepended to every device path; empty in production.
	Root        string
	groups      func() ([]int, error)
	lookupGroup func(name string) (int, error)
}

// NewProber returns a prober for the live system
func NewProber() *Prober {
	return &Prober{
		groups:      processGroups,
		lookupGroup: lookupGroupID,
	}
}

// Probe runs all checks relevant to backend ("rocm", "cuda", anything else means both)
func Probe(backend string) []Finding {
	return NewProber().Probe(backend)
}

// Probe runs all checks relevant to backend
func (p *Prober) Probe(backend string) []Finding {
	nodes := deviceNodes(backend)
	if len(nodes) == 0 {
		return nil
	}

	gids, err := p.groups()
	if err != nil {
		gids = nil
	}

	findings := make([]Finding, 0, len(nodes)+len(accessGroups))
	var nodeGroups []uint32
	for _, node := range nodes {
		f, gid, ok := p.probeNode(node)
		findings = append(findings, f)
		if ok {
			nodeGroups = append(nodeGroups, gid)
		}
	}

	for _, name := range accessGroups {
		findings = append(findings, p.probeGroup(name, gids))
	}

	for _, gid := range uniqueGIDs(nodeGroups) {
		member := slices.Contains(gids, int(gid))
		f := Finding{
			Check: "node.group",
			OK:    member,
		}
		if member {
			f.Detail = fmt.Sprintf("process is in gid %d", gid)
		} else {
			f.Detail = fmt.Sprintf("process is not in gid %d that owns a device node", gid)
		}
		findings = append(findings, f)
	}

	return findings
}

// probeNode stats a device node and checks read/write access
func (p *Prober) probeNode(node string) (Finding, uint32, bool) {
	path := filepath.Join(p.Root, node)
	f := Finding{Check: "device.node", Path: node}

	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			f.Detail = "not mounted"
		} else {
			f.Detail = err.Error()
		}
		return f, 0, false
	}

	mode := uint32(unix.R_OK)
	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		mode |= unix.X_OK
	} else {
		mode |= unix.W_OK
	}
	if err := unix.Access(path, mode); err != nil {
		f.Detail = "present but not accessible: " + err.Error()
		return f, st.Gid, true
	}

	f.OK = true
	f.Detail = "present"
	return f, st.Gid, true
}

func (p *Prober) probeGroup(name string, gids []int) Finding {
	f := Finding{Check: "group." + name}

	gid, err := p.lookupGroup(name)
	if err != nil {
		f.Detail = fmt.Sprintf("group %q does not exist", name)
		return f
	}
	if slices.Contains(gids, gid) {
		f.OK = true
		f.Detail = fmt.Sprintf("member of %s (gid %d)", name, gid)
		return f
	}
	f.Detail = fmt.Sprintf("not a member of %s (gid %d)", name, gid)
	return f
}

func processGroups() ([]int, error) {
	gids, err := unix.Getgroups()
	if err != nil {
		return nil, err
	}
	return append(gids, unix.Getegid()), nil
}

func lookupGroupID(name string) (int, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(g.Gid)
}

func uniqueGIDs(in []uint32) []uint32 {
	out := make([]uint32, 0, len(in))
	for _, gid := range in {
		if !slices.Contains(out, gid) {
			out = append(out, gid)
		}
	}
	return out
}
