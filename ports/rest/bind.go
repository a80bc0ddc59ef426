package rest

import (
	"errors"
	"net/http"
	"net/url"
	"reflect"

	"github.com/gin-gonic/gin"
	"github.com/mitchellh/mapstructure"
)

// MustBind calls Bind and aborts the request if an error is raised
func MustBind(c *gin.Context, target interface{}) error {
	if err := Bind(c, target); err != nil {
		c.AbortWithError(http.StatusBadRequest, err)
		return err
	}
	return nil
}

// Bind maps a request onto a message: its JSON body, query, form and URI parameters,
// in increasing priority. Fields are matched by json tag, or by name ignoring case.
func Bind(c *gin.Context, target interface{}) error {
	return bind(c, target, true)
}

func bind(c *gin.Context, target interface{}, uri bool) error {
	if reflect.ValueOf(target).Kind() != reflect.Ptr {
		return errors.New("bind target must be a pointer")
	}

	intermediary := make(map[string]interface{})
	if err := bindJSON(c, intermediary); err != nil {
		return err
	}
	bindURLValues(c.Request.URL.Query(), intermediary)
	if err := bindForm(c, intermediary); err != nil {
		return err
	}
	if uri {
		for _, param := range c.Params {
			intermediary[param.Key] = param.Value
		}
	}

	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ZeroFields:       false,
		WeaklyTypedInput: true,
		Result:           target,
		TagName:          "json",
		Squash:           true,
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(mapstructure.TextUnmarshallerHookFunc()),
	})
	if err != nil {
		return err
	}
	return d.Decode(intermediary)
}

func bindJSON(c *gin.Context, target map[string]interface{}) error {
	if c.ContentType() != "application/json" || c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(&target)
}

func bindForm(c *gin.Context, target map[string]interface{}) error {
	if c.ContentType() != "application/x-www-form-urlencoded" {
		return nil
	}
	if err := c.Request.ParseForm(); err != nil {
		return err
	}
	bindURLValues(c.Request.PostForm, target)
	return nil
}

func bindURLValues(vals url.Values, target map[string]interface{}) {
	for key, val := range vals {
		if len(val) == 0 {
			continue
		} else if len(val) > 1 {
			target[key] = val
		} else {
			target[key] = val[0]
		}
	}
}
