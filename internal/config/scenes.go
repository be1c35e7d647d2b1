// -*- mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"io/ioutil"
	"os"
	"path"

	"github.com/nexusiot/devicegateway/internal/common"
	"gopkg.in/yaml.v2"
)

// scenesDoc is the shape of an optional scenes.yaml: a deployment that
// wants to iterate on scenes without touching the TOML channel/node
// file can drop one of these alongside it.
type scenesDoc struct {
	Scenes []Scene `yaml:"scenes"`
}

// LoadScenes reads confDir/scenes.yaml if present and returns its
// scenes, or an empty slice if the file doesn't exist.
func LoadScenes(confDir string) ([]Scene, error) {
	if len(confDir) == 0 {
		confDir = common.ConfigDirectory
	}
	p := path.Join(confDir, common.ScenesFileName)

	contents, err := ioutil.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, common.NewConfigError("could not read "+p, err)
	}

	var doc scenesDoc
	if err := yaml.Unmarshal(contents, &doc); err != nil {
		return nil, common.NewConfigError("could not parse "+p, err)
	}
	return doc.Scenes, nil
}
