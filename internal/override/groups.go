package override

import (
	"strings"

	"github.com/vk/trainlaunch/internal/compose"
	"github.com/vk/trainlaunch/internal/config"
)

// Split separates group-choice overrides from key assignments. A key is a
// group when it contains a slash or isGroup reports a config group with that
// name; group overrides must carry a plain option name.
func Split(assignments []Assignment, isGroup func(string) bool) ([]compose.GroupOverride, []Assignment, error) {
	var (
		groups []compose.GroupOverride
		keys   []Assignment
	)
	for _, a := range assignments {
		if a.Path != nil && !strings.Contains(a.Key, "/") && !isGroup(a.Key) {
			keys = append(keys, a)
			continue
		}
		if a.Sweep != nil {
			return nil, nil, config.Errorf(config.ErrInvalidOverridePath, a.Key, "sweep '%s' must be expanded first", a.Sweep)
		}

		g := compose.GroupOverride{Group: a.Key}
		switch a.Op {
		case OpDelete:
			g.Delete = true
		case OpAdd:
			g.Add = true
		}
		if a.HasValue {
			switch v := a.Value.(type) {
			case nil:
				if a.Op != OpDelete {
					g.Delete = true
				}
			case string:
				g.Option = v
			default:
				s, err := config.FormatScalar(v)
				if err != nil {
					return nil, nil, config.Errorf(config.ErrInvalidLiteral, a.Key,
						"group option must be a name, got %s", config.KindName(v))
				}
				g.Option = s
			}
		} else if a.Op != OpDelete {
			return nil, nil, config.Errorf(config.ErrInvalidOverridePath, a.Key, "group override needs an option")
		}
		groups = append(groups, g)
	}
	return groups, keys, nil
}
