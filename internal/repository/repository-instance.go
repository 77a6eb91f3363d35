package repository

import "permission-service/internal/database/mongo"

type Repositories struct {
	WorkspaceMemberRepository *WorkspaceMemberRepository
	SubspaceMemberRepository  *SubspaceMemberRepository
	GroupMemberRepository     *GroupMemberRepository
	GrantRepository           *GrantRepository
	ResourceRepository        *ResourceRepository
	RedisRepository           *RedisRepo
}

var Repositories_instance = &Repositories{
	WorkspaceMemberRepository: NewWorkspaceMemberRepository(mongo.Mongo_Database),
	SubspaceMemberRepository:  NewSubspaceMemberRepository(mongo.Mongo_Database),
	GroupMemberRepository:     NewGroupMemberRepository(mongo.Mongo_Database),
	GrantRepository:           NewGrantRepository(mongo.Mongo_Database),
	ResourceRepository:        NewResourceRepository(mongo.Mongo_Database),
	RedisRepository:           NewRedisRepo(),
}
