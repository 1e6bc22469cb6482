// Package launcher turns a config name and command-line overrides into
// prepared jobs and runs them one after another.
//
// Preparation composes the configuration for every point of the sweep,
// applies key overrides, injects runtime keys under `hydra`, resolves
// interpolations, points `ckpt_path: best:<dir>` or `last:<dir>` at a real
// file and validates `_target_` subtrees. Nothing runs until every job has
// prepared successfully, so configuration errors never leave a sweep half
// done. Running creates each job's output directory, records the job's
// configuration under `.hydra/`, notifies callbacks and hands the job to a
// Trainer.
package launcher
