// Package all links every datasource engine into the binary.
package all

import (
	_ "github.com/ekaya-inc/querygate/pkg/adapters/datasource/mongodb"
	_ "github.com/ekaya-inc/querygate/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/querygate/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/querygate/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/querygate/pkg/adapters/datasource/redis"
	_ "github.com/ekaya-inc/querygate/pkg/adapters/datasource/sqlite"
)
