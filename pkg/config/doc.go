/*
Package config loads the runmerge tool configuration.

	            +-------------+
	            |   Config    |
	            | (Settings)  |
	            +------+------+
	                   |
	      +------------+------------+
	      |            |            |
	+-----+-----+ +----+----+ +-----+-----+
	|   YAML    | |   HCL   | |   JSON    |
	| Parser    | | Parser  | | Parser    |
	+-----------+ +---------+ +-----------+

🎯 Purpose:
- Picks a parser by file extension
- Fills in defaults when the file or a field is missing
- Applies RUNMERGE_RUNS_DIR and RUNMERGE_GIT from the environment or a
  .env file next to the config

🔍 Example:

	cfg, err := config.Load(ctx, ".runmerge.yaml")
	if err != nil {
		return err
	}
	store := run.NewStore(cfg.RunsDir)
*/
package config
