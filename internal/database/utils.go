package database

import "path"

// dataSourceName resolves the sqlite file location relative to the config
// directory. An empty config path keeps the database in the working directory.
func dataSourceName(configPath string, name string) string {
	if configPath != "" {
		return path.Join(configPath, name)
	}
	return name
}
