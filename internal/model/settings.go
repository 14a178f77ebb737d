package model

// Settings are the persisted defaults for new jobs
type Settings struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	Descriptor      string `json:"descriptor"`
	Origin          string `json:"origin"`
	Avatar          string `json:"avatar"`
	ListID          string `json:"list_id"`
	Warped          bool   `json:"warped"`
	NameAsUserData  bool   `json:"name_as_userdata"`
	MultiFacePolicy int    `json:"multi_face_policy"`
}

func DefaultSettings() Settings {
	return Settings{
		Descriptor:      "1",
		Avatar:          "1",
		MultiFacePolicy: 1,
	}
}

// JobConfig returns a job configuration for folder populated from s
func (s Settings) JobConfig(folder string) JobConfig {
	return JobConfig{
		Folder:          folder,
		Username:        s.Username,
		Password:        s.Password,
		Descriptor:      s.Descriptor,
		Origin:          s.Origin,
		Avatar:          s.Avatar,
		ListID:          s.ListID,
		MultiFacePolicy: s.MultiFacePolicy,
		Warped:          s.Warped,
		NameAsUserData:  s.NameAsUserData,
	}
}
