package service

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sharetube/zone/internal/domain"
)

const (
	EmoteWavy    = "wvy"
	EmoteShake   = "shk"
	EmoteRainbow = "rbw"
	EmoteSpin    = "spn"
)

var NameRule = []validation.Rule{
	validation.Required,
	validation.RuneLength(1, 32),
}

var AvatarRule = []validation.Rule{
	validation.Length(0, 16384),
}

var PositionRule = []validation.Rule{
	validation.Length(2, 3),
}

var EmotesRule = []validation.Rule{
	validation.Length(0, 4),
	validation.Each(validation.In(EmoteWavy, EmoteShake, EmoteRainbow, EmoteSpin)),
}

var EchoTextRule = []validation.Rule{
	validation.RuneLength(0, domain.EchoTextLimit),
}

var PathRule = []validation.Rule{
	validation.Required,
	validation.Length(3, 256),
}
