package profile

import (
	"sort"

	"codeberg.org/mutker/powergov/internal/errors"
)

var validTHP = map[string]bool{"": true, "always": true, "madvise": true, "never": true}

// Catalog is the immutable set of profiles. It is built once at start-up.
type Catalog struct {
	profiles map[string]Profile
	names    []string
	def      string
}

// NewCatalog validates profiles and builds a catalog. defaultName may be
// empty, in which case the first declared profile of the lowest level is
// the default.
func NewCatalog(defaultName string, profiles ...Profile) (*Catalog, error) {
	errFactory := errors.New()

	if len(profiles) == 0 {
		return nil, errFactory.New(ErrEmptyCatalog)
	}

	c := &Catalog{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if p.Name == "" {
			return nil, errFactory.New(ErrMissingName)
		}
		if _, dup := c.profiles[p.Name]; dup {
			return nil, errFactory.WithData(ErrDuplicateName, p.Name)
		}

		prepared, err := prepare(p)
		if err != nil {
			return nil, err
		}

		c.profiles[p.Name] = prepared
		c.names = append(c.names, p.Name)
	}

	sort.SliceStable(c.names, func(i, j int) bool {
		return c.profiles[c.names[i]].Level < c.profiles[c.names[j]].Level
	})

	if defaultName == "" {
		defaultName = c.names[0]
	}
	def, ok := c.profiles[defaultName]
	if !ok {
		return nil, errFactory.WithData(ErrDefaultNotFound, defaultName)
	}
	if def.Level > c.profiles[c.names[0]].Level {
		return nil, errFactory.WithData(ErrDefaultLevel, defaultName)
	}
	c.def = defaultName

	return c, nil
}

func prepare(p Profile) (Profile, error) {
	errFactory := errors.New()

	online, err := ParseCPUList(p.CoresOnline)
	if err != nil {
		return p, errFactory.Wrap(ErrInvalidCPUList, err).WithData(p.Name)
	}
	offline, err := ParseCPUList(p.CoresOffline)
	if err != nil {
		return p, errFactory.Wrap(ErrInvalidCPUList, err).WithData(p.Name)
	}

	in := make(map[int]bool, len(online))
	for _, cpu := range online {
		in[cpu] = true
	}
	for _, cpu := range offline {
		if in[cpu] {
			return p, errFactory.WithData(ErrCoreOverlap, p.Name)
		}
	}

	if p.GPUClocks != nil && (p.GPUClocks.MinMHz <= 0 || p.GPUClocks.MinMHz > p.GPUClocks.MaxMHz) {
		return p, errFactory.WithData(ErrInvalidClocks, p.Name)
	}
	if p.MinFreqMHz < 0 || p.MaxFreqMHz < 0 || (p.MaxFreqMHz > 0 && p.MinFreqMHz > p.MaxFreqMHz) {
		return p, errFactory.WithData(ErrInvalidValue, p.Name+": frequency range")
	}
	if p.GPUPowerLimit < 0 || p.MaxDuration < 0 {
		return p, errFactory.WithData(ErrInvalidValue, p.Name)
	}
	if p.GPUFanSpeed != nil && (*p.GPUFanSpeed < 0 || *p.GPUFanSpeed > 100) {
		return p, errFactory.WithData(ErrInvalidValue, p.Name+": gpu_fan_speed")
	}
	if !validTHP[p.Memory.TransparentHugepage] {
		return p, errFactory.WithData(ErrInvalidValue, p.Name+": transparent_hugepage")
	}

	p.online = online
	p.offline = offline

	return p, nil
}

// Get returns the profile with the given name.
func (c *Catalog) Get(name string) (Profile, bool) {
	p, ok := c.profiles[name]
	return p, ok
}

// Has reports whether name is in the catalog.
func (c *Catalog) Has(name string) bool {
	_, ok := c.profiles[name]
	return ok
}

// DefaultName returns the name of the default profile.
func (c *Catalog) DefaultName() string {
	return c.def
}

// Names returns profile names ordered by level, then declaration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Level returns the level of name, or -1 if unknown.
func (c *Catalog) Level(name string) int {
	p, ok := c.profiles[name]
	if !ok {
		return -1
	}
	return p.Level
}

// Compare orders two profiles by resource intensity: negative when a is
// less intensive than b, zero when both share a level.
func (c *Catalog) Compare(a, b string) int {
	return c.Level(a) - c.Level(b)
}
