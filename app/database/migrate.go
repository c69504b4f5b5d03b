package database

import "subtitle-flow/app/model"

func AutoMigrate() error {
	// 自动迁移表结构
	return DB.AutoMigrate(
		&model.User{},
		&model.TaskRecord{},
		&model.DatasetRecord{},
	)
}
