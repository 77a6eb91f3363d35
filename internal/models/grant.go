package models

// Grant subject kinds.
const (
	SubjectUser  = "user"
	SubjectGroup = "group"
)

// Grant is an explicit subject-to-resource permission record. For
// SubjectUser it is a direct grant; for SubjectGroup it applies to
// every member of the group.
type Grant struct {
	ID           string          `bson:"_id,omitempty" json:"id"`
	ResourceID   string          `bson:"resourceId" json:"resourceId"`
	ResourceType string          `bson:"resourceType" json:"resourceType"`
	SubjectType  string          `bson:"subjectType" json:"subjectType"`
	SubjectID    string          `bson:"subjectId" json:"subjectId"`
	Level        PermissionLevel `bson:"level" json:"level"`
	GrantedBy    string          `bson:"grantedBy" json:"grantedBy"`
	CreatedAt    int             `bson:"createdAt" json:"createdAt"`
	UpdatedAt    int             `bson:"updatedAt" json:"updatedAt"`
}

// InheritedGrant is a level propagated from an ancestor resource. No
// producer writes these yet; the resolver accepts them as extra
// aggregation candidates so enabling inheritance later does not touch
// the algorithm.
type InheritedGrant struct {
	SourceGrantID string          `bson:"sourceGrantId" json:"sourceGrantId"`
	Level         PermissionLevel `bson:"level" json:"level"`
}

// WorkspaceMember records a user's role inside a workspace.
type WorkspaceMember struct {
	ID          string `bson:"_id,omitempty" json:"id"`
	WorkspaceID string `bson:"workspaceId" json:"workspaceId"`
	UserID      string `bson:"userId" json:"userId"`
	Role        string `bson:"role" json:"role"`
	AddedBy     string `bson:"addedBy" json:"addedBy"`
	CreatedAt   int    `bson:"createdAt" json:"createdAt"`
}

// SubspaceMember records a user's role inside a subspace.
type SubspaceMember struct {
	ID         string `bson:"_id,omitempty" json:"id"`
	SubspaceID string `bson:"subspaceId" json:"subspaceId"`
	UserID     string `bson:"userId" json:"userId"`
	Role       string `bson:"role" json:"role"`
	AddedBy    string `bson:"addedBy" json:"addedBy"`
	CreatedAt  int    `bson:"createdAt" json:"createdAt"`
}

// GroupMember ties a user to a group. Group grants become effective
// for every user with a membership record.
type GroupMember struct {
	ID        string `bson:"_id,omitempty" json:"id"`
	GroupID   string `bson:"groupId" json:"groupId"`
	UserID    string `bson:"userId" json:"userId"`
	AddedBy   string `bson:"addedBy" json:"addedBy"`
	CreatedAt int    `bson:"createdAt" json:"createdAt"`
}
