package auth

import (
	"strings"
	"time"

	"github.com/hitoshi/parkspot/internal/model"
	"github.com/hitoshi/parkspot/internal/supabase"
)

// defaultProfileName は名前もメールアドレスも得られない場合の表示名。
const defaultProfileName = "User"

// SynthesizeProfile は認証サービスのユーザー情報からプロフィールを組み立てる。
// profilesテーブルに行がない場合の補完に使用する。ネットワークアクセスは行わない。
//
// 名前はuser_metadataのname、メールアドレスのローカル部、"User"の順に採用する。
// ロールはuser_metadataのroleが定義済みの値であれば採用し、それ以外は"user"とする。
func SynthesizeProfile(userID string, user *supabase.User, now time.Time) *model.Profile {
	profile := &model.Profile{
		ID:        userID,
		Name:      defaultProfileName,
		Role:      model.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if user == nil {
		return profile
	}

	profile.Email = user.Email

	switch {
	case user.MetadataString("name") != "":
		profile.Name = user.MetadataString("name")
	case emailLocalPart(user.Email) != "":
		profile.Name = emailLocalPart(user.Email)
	}

	if role := model.Role(user.MetadataString("role")); role.Valid() {
		profile.Role = role
	}

	profile.Phone = optionalString(user.MetadataString("phone"))
	profile.AvatarURL = optionalString(user.MetadataString("avatar_url"))
	profile.BusinessName = optionalString(user.MetadataString("business_name"))
	profile.BusinessAddress = optionalString(user.MetadataString("business_address"))

	return profile
}

// emailLocalPart はメールアドレスの@より前の部分を返す。
func emailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
