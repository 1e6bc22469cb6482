package launcher

import (
	"context"
	"fmt"

	"github.com/vk/trainlaunch/internal/checkpoint"
	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/ctxlog"
)

const (
	ckptPathKey = "ckpt_path"
	// checkpointCallbackKey holds the trainer's ModelCheckpoint settings.
	checkpointCallbackKey = "callbacks.model_checkpoint"
	// defaultCheckpointFilename is what the trainer writes without a filename.
	defaultCheckpointFilename = "{epoch}-{step}"
)

// checkpointSettings is the subset of the ModelCheckpoint callback needed to
// find checkpoints it wrote.
type checkpointSettings struct {
	filename   string
	autoInsert bool
	monitor    string
	mode       checkpoint.Mode
}

func readCheckpointSettings(tree *config.Node) (checkpointSettings, error) {
	s := checkpointSettings{filename: defaultCheckpointFilename, autoInsert: true, mode: checkpoint.ModeMin}
	v, err := tree.LookupString(checkpointCallbackKey)
	if err != nil || v == nil {
		return s, nil
	}
	node, ok := v.(*config.Node)
	if !ok {
		return s, nil
	}
	if f, ok := node.Get("filename"); ok && f != nil {
		str, ok := f.(string)
		if !ok {
			return s, fmt.Errorf("%s.filename must be a string", checkpointCallbackKey)
		}
		s.filename = str
	}
	if a, ok := node.Get("auto_insert_metric_name"); ok && a != nil {
		b, ok := a.(bool)
		if !ok {
			return s, fmt.Errorf("%s.auto_insert_metric_name must be a bool", checkpointCallbackKey)
		}
		s.autoInsert = b
	}
	if m, ok := node.Get("monitor"); ok {
		if str, ok := m.(string); ok {
			s.monitor = str
		}
	}
	if m, ok := node.Get("mode"); ok && m != nil {
		str, _ := m.(string)
		mode, err := checkpoint.ParseMode(str)
		if err != nil {
			return s, fmt.Errorf("%s.mode: %w", checkpointCallbackKey, err)
		}
		s.mode = mode
	}
	return s, nil
}

// resolveCheckpoint replaces a `best:<dir>` or `last:<dir>` ckpt_path with the
// file it designates. Any other value is left untouched.
func resolveCheckpoint(ctx context.Context, tree *config.Node) error {
	v, ok := tree.Get(ckptPathKey)
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	ref, ok := checkpoint.ParseRef(s)
	if !ok {
		return nil
	}

	settings, err := readCheckpointSettings(tree)
	if err != nil {
		return err
	}
	tpl, err := checkpoint.ParseTemplate(settings.filename, settings.autoInsert)
	if err != nil {
		return fmt.Errorf("%s.filename: %w", checkpointCallbackKey, err)
	}
	path, err := ref.Resolve(tpl, settings.monitor, settings.mode)
	if err != nil {
		return fmt.Errorf("failed to resolve %s '%s': %w", ckptPathKey, s, err)
	}

	ctxlog.FromContext(ctx).Info("Resolved checkpoint.", "ref", s, "path", path)
	tree.Set(ckptPathKey, path)
	return nil
}
